package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"gopkg.in/yaml.v3"
)

// File is the on-disk subject list. Kind applies to subjects that leave
// their own kind empty.
//
//	kind: Event
//	subjects:
//	  - {id: A, category: war, from: -1000, to: -800}
type File struct {
	Kind     string          `yaml:"kind" json:"kind"`
	Subjects []lanes.Subject `yaml:"subjects" json:"subjects"`
}

// LoadFile reads a subject file. Files ending in .json are decoded as JSON,
// anything else as YAML.
func LoadFile(path string) ([]lanes.Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subject file %s: %w", path, err)
	}
	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing subject file %s: %w", path, err)
	}
	for i := range f.Subjects {
		if f.Subjects[i].Kind == "" {
			f.Subjects[i].Kind = f.Kind
		}
	}
	return f.Subjects, nil
}

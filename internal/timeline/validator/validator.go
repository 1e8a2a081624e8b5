// Package validator parses and validates layout requests and imported
// subjects, returning per-field error details.
package validator

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
)

const (
	maxNameLength      = 255
	maxExcludedCount   = 100
	maxSubjectIDLength = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Defaults fills bounds the caller left out.
type Defaults struct {
	From float64
	To   float64
}

// ParseLayoutRequest reads a layout request from query parameters.
// excluded may repeat or be comma-separated.
func ParseLayoutRequest(q url.Values, d Defaults) (timeline.LayoutRequest, error) {
	errs := make(map[string]string)
	req := timeline.LayoutRequest{
		From:    d.From,
		To:      d.To,
		Kind:    strings.TrimSpace(q.Get("kind")),
		Subject: strings.TrimSpace(q.Get("subject")),
	}

	if v := q.Get("from"); v != "" {
		f, err := parseBound(v)
		if err != nil {
			errs["from"] = err.Error()
		}
		req.From = f
	}
	if v := q.Get("to"); v != "" {
		f, err := parseBound(v)
		if err != nil {
			errs["to"] = err.Error()
		}
		req.To = f
	}
	if errs["from"] == "" && errs["to"] == "" && req.From > req.To {
		errs["to"] = "to must not be less than from"
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			errs["page"] = "page must be a positive integer"
		} else {
			req.Page = page
		}
	}

	if len(req.Kind) > maxNameLength {
		errs["kind"] = fmt.Sprintf("kind must be at most %d characters", maxNameLength)
	}
	if len(req.Subject) > maxSubjectIDLength {
		errs["subject"] = fmt.Sprintf("subject must be at most %d characters", maxSubjectIDLength)
	}

	for _, raw := range q["excluded"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				req.Excluded = append(req.Excluded, c)
			}
		}
	}
	if len(req.Excluded) > maxExcludedCount {
		errs["excluded"] = fmt.Sprintf("at most %d excluded categories", maxExcludedCount)
	}

	if len(errs) > 0 {
		return timeline.LayoutRequest{}, &ValidationError{Fields: errs}
	}
	return req, nil
}

func parseBound(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	return f, nil
}

// ValidateSubject checks a subject before it is imported.
func ValidateSubject(s lanes.Subject) error {
	errs := make(map[string]string)
	if strings.TrimSpace(s.ID) == "" {
		errs["id"] = "id is required"
	} else if len(s.ID) > maxSubjectIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxSubjectIDLength)
	}
	if strings.TrimSpace(s.Kind) == "" {
		errs["kind"] = "kind is required"
	} else if len(s.Kind) > maxNameLength {
		errs["kind"] = fmt.Sprintf("kind must be at most %d characters", maxNameLength)
	}
	if strings.TrimSpace(s.Category) == "" {
		errs["category"] = "category is required"
	} else if len(s.Category) > maxNameLength {
		errs["category"] = fmt.Sprintf("category must be at most %d characters", maxNameLength)
	}
	if math.IsNaN(s.From) || math.IsInf(s.From, 0) || math.IsNaN(s.To) || math.IsInf(s.To, 0) {
		errs["range"] = "from and to must be finite"
	} else if s.From > s.To {
		errs["range"] = "from must not exceed to"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

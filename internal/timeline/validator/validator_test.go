package validator

import (
	"errors"
	"math"
	"net/url"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
)

var defaults = Defaults{From: -3000, To: 2100}

func TestParseLayoutRequestDefaults(t *testing.T) {
	req, err := ParseLayoutRequest(url.Values{}, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.From != -3000 || req.To != 2100 || req.Page != 0 || req.Kind != "" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestParseLayoutRequest(t *testing.T) {
	q := url.Values{
		"from":     {"-1000"},
		"to":       {"0"},
		"kind":     {" Event "},
		"page":     {"2"},
		"subject":  {"B"},
		"excluded": {"war,reign", " plague ", ""},
	}
	req, err := ParseLayoutRequest(q, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.From != -1000 || req.To != 0 || req.Kind != "Event" || req.Page != 2 || req.Subject != "B" {
		t.Errorf("unexpected request %+v", req)
	}
	if !reflect.DeepEqual(req.Excluded, []string{"war", "reign", "plague"}) {
		t.Errorf("excluded = %v", req.Excluded)
	}
}

func TestParseLayoutRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		q     url.Values
		field string
	}{
		{"zero page", url.Values{"page": {"0"}}, "page"},
		{"negative page", url.Values{"page": {"-1"}}, "page"},
		{"non-integer page", url.Values{"page": {"two"}}, "page"},
		{"bad from", url.Values{"from": {"yesterday"}}, "from"},
		{"infinite to", url.Values{"to": {"Inf"}}, "to"},
		{"inverted range", url.Values{"from": {"10"}, "to": {"5"}}, "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayoutRequest(tt.q, defaults)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.Fields[tt.field]; !ok {
				t.Errorf("expected field %q in %v", tt.field, vErr.Fields)
			}
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Error("validation errors should match ErrInvalidInput")
			}
		})
	}
}

func TestValidateSubject(t *testing.T) {
	good := lanes.Subject{ID: "s1", Kind: "Event", Category: "war", From: -10, To: 10}
	if err := ValidateSubject(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := lanes.Subject{From: 10, To: -10}
	err := ValidateSubject(bad)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"id", "kind", "category", "range"} {
		if _, ok := vErr.Fields[f]; !ok {
			t.Errorf("missing field %q", f)
		}
	}
	if vErr.Error() != "category:category is required; id:id is required; kind:kind is required; range:from must not exceed to" {
		t.Errorf("unexpected message %q", vErr.Error())
	}

	nan := good
	nan.To = math.NaN()
	if err := ValidateSubject(nan); err == nil {
		t.Error("expected NaN bound to be rejected")
	}
}

// Package result normalizes classification script output into a Result.
package result

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/shahar-caura/vlmshell/internal/failure"
)

// Result is one normalized classification.
type Result struct {
	Category         string  `json:"category"`
	Confidence       float64 `json:"confidence"`
	OriginalResponse string  `json:"original_response"`
}

// wire mirrors Result with pointers so missing required fields are detectable.
type wire struct {
	Category         *string  `json:"category"`
	Confidence       *float64 `json:"confidence"`
	OriginalResponse *string  `json:"original_response"`
}

var errMissingField = errors.New("missing required field")

// Source tells how a Result was obtained.
type Source string

const (
	Strict   Source = "strict"
	Fallback Source = "fallback"
)

// Parse never rejects non-empty output. A well-formed JSON object is returned
// as-is; anything else non-blank becomes a fallback result labelled with the
// trimmed text at confidence 0. Blank output fails with ParseFailed.
//
// The confidence value is not range-checked.
func Parse(raw string) (*Result, error) {
	r, _, err := ParseSource(raw)
	return r, err
}

// ParseSource is Parse that also reports which path produced the result.
func ParseSource(raw string) (*Result, Source, error) {
	text := strings.TrimSpace(raw)

	r, strictErr := decode(text)
	if strictErr == nil {
		return r, Strict, nil
	}

	if text == "" {
		return nil, "", failure.Wrap(failure.ParseFailed, strictErr, "classification output is empty")
	}

	return &Result{
		Category:         text,
		Confidence:       0,
		OriginalResponse: text,
	}, Fallback, nil
}

// decode is the strict parse: the whole text must be one JSON object carrying
// category and a finite confidence.
func decode(text string) (*Result, error) {
	var w wire
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, err
	}
	if w.Category == nil || w.Confidence == nil {
		return nil, errMissingField
	}
	if math.IsNaN(*w.Confidence) || math.IsInf(*w.Confidence, 0) {
		return nil, errors.New("confidence is not a finite number")
	}

	r := &Result{
		Category:         *w.Category,
		Confidence:       *w.Confidence,
		OriginalResponse: text,
	}
	if w.OriginalResponse != nil {
		r.OriginalResponse = *w.OriginalResponse
	}
	return r, nil
}

// Package serial provides the JSON serialization service used to pass "any"
// route parameters through URIs.
package serial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty is returned when there is nothing to parse.
var ErrEmpty = errors.New("empty payload")

// JSON implements route.Serializer and route.Provider.
type JSON struct {
	// Strict rejects fields the destination does not declare.
	Strict bool
}

// New returns a JSON serializer.
func New() *JSON {
	return &JSON{}
}

// Init satisfies route.Provider; there is nothing to prepare.
func (j *JSON) Init(ctx context.Context) error {
	return nil
}

// ToJSON encodes v.
func (j *JSON) ToJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %T: %w", v, err)
	}
	return string(data), nil
}

// Parse decodes data into the value pointed to by into. Numbers decoded into
// an interface stay json.Number so large ids keep their precision.
func (j *JSON) Parse(data string, into any) error {
	if strings.TrimSpace(data) == "" {
		return ErrEmpty
	}

	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if j.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", into, err)
	}
	if dec.More() {
		return fmt.Errorf("unmarshal into %T: trailing data", into)
	}
	return nil
}

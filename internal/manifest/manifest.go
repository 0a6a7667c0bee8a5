// Package manifest resolves a sources manifest into an ordered list of
// source files.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Compiler identifies the toolchain a contract was compiled with.
type Compiler string

// Supported compilers.
const (
	CompilerFunc Compiler = "func"
	CompilerTact Compiler = "tact"
	CompilerFift Compiler = "fift"
)

// Source is one entry of the manifest's source list.
type Source struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	IsEntrypoint bool   `json:"isEntrypoint,omitempty"`
}

// Manifest is the externally hosted document a source record points at.
type Manifest struct {
	Sources          []Source        `json:"sources"`
	Compiler         Compiler        `json:"compiler"`
	CompilerSettings json.RawMessage `json:"compilerSettings"`
	VerificationDate Timestamp       `json:"verificationDate"`
}

// Timestamp accepts ISO-8601 strings and unix millisecond numbers.
type Timestamp struct {
	time.Time
}

// dateLayouts are the ISO-8601 forms accepted for verificationDate, tried
// in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseDate(s)
		if err != nil {
			return fmt.Errorf("verificationDate: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	}

	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("verificationDate: %w", err)
	}
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
	if !(ms >= math.MinInt64 && ms < math.MaxInt64) {
		return fmt.Errorf("verificationDate: %s is out of range", data)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Parse decodes a manifest document. Bytes that are not JSON are a fetch
// failure; JSON that does not describe a manifest is ErrManifest.
func Parse(data []byte) (*Manifest, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: manifest is not valid JSON", ErrFetch)
	}
	if err := validateShape(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return &m, nil
}

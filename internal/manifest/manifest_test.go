package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	doc := `{
		"sources": [
			{"url": "ipfs://QmA", "filename": "a.fc"},
			{"url": "ipfs://QmB", "filename": "b.fc", "isEntrypoint": true}
		],
		"compiler": "func",
		"compilerSettings": {"funcVersion": "0.4.4", "commandLine": "-SPA b.fc"},
		"verificationDate": "2023-05-01T10:00:00Z"
	}`

	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, CompilerFunc, m.Compiler)
	require.Len(t, m.Sources, 2)
	assert.False(t, m.Sources[0].IsEntrypoint)
	assert.True(t, m.Sources[1].IsEntrypoint)
	assert.JSONEq(t, `{"funcVersion": "0.4.4", "commandLine": "-SPA b.fc"}`, string(m.CompilerSettings))
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), m.VerificationDate.Time)
}

func TestParse_UnixMillisDate(t *testing.T) {
	doc := `{"sources": [], "compiler": "tact", "compilerSettings": {}, "verificationDate": 1682935200000}`

	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), m.VerificationDate.Time)
}

func TestParse_DateForms(t *testing.T) {
	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"rfc3339 utc", `"2023-05-01T10:00:00Z"`, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"rfc3339 millis offset", `"2023-05-01T12:00:00.250+02:00"`, time.Date(2023, 5, 1, 10, 0, 0, 250e6, time.UTC)},
		{"basic offset", `"2023-05-01T10:00:00.000+0000"`, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"basic offset negative", `"2023-05-01T05:00:00-0500"`, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"no zone", `"2023-05-01T10:00:00"`, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"no zone millis", `"2023-05-01T10:00:00.123"`, time.Date(2023, 5, 1, 10, 0, 0, 123e6, time.UTC)},
		{"date only", `"2023-05-01"`, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"unix millis", `1682935200000`, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"negative unix millis", `-86400000`, time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": ` + tt.date + `}`
			m, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(m.VerificationDate.Time), "got %s", m.VerificationDate.Time)
		})
	}
}

func TestParse_NotJSON(t *testing.T) {
	_, err := Parse([]byte("<html>gateway error</html>"))
	assert.ErrorIs(t, err, ErrFetch)
	assert.NotErrorIs(t, err, ErrManifest)
}

func TestParse_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing sources", `{"compiler": "func", "compilerSettings": {}, "verificationDate": "2023-05-01T10:00:00Z"}`},
		{"missing compiler", `{"sources": [], "compilerSettings": {}, "verificationDate": "2023-05-01T10:00:00Z"}`},
		{"unknown compiler", `{"sources": [], "compiler": "solc", "compilerSettings": {}, "verificationDate": "2023-05-01T10:00:00Z"}`},
		{"settings not an object", `{"sources": [], "compiler": "func", "compilerSettings": "x", "verificationDate": "2023-05-01T10:00:00Z"}`},
		{"missing date", `{"sources": [], "compiler": "func", "compilerSettings": {}}`},
		{"source without url", `{"sources": [{"filename": "a.fc"}], "compiler": "func", "compilerSettings": {}, "verificationDate": "2023-05-01T10:00:00Z"}`},
		{"bad date", `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": "yesterday"}`},
		{"bad calendar date", `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": "2023-13-45"}`},
		{"millis too large", `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": 1e30}`},
		{"millis too small", `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": -1e30}`},
		{"millis at 2^63", `{"sources": [], "compiler": "func", "compilerSettings": {}, "verificationDate": 9223372036854775808}`},
		{"array document", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.doc))
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrManifest)
		})
	}
}

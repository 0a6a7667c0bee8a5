// Package domain contains the business logic for verified source resolution.
package domain

import (
	"encoding/json"
	"time"

	"github.com/pendergraft/verisource/internal/manifest"
)

// ResolveRequest identifies the sources to look up. Empty Network and
// Verifier fall back to the service defaults.
type ResolveRequest struct {
	CodeHash string // hex or base64
	Network  string
	Verifier string
}

// Pointer is the on-chain half of a resolution: where the manifest lives.
type Pointer struct {
	Network       string
	Verifier      string
	CodeHash      string // hex
	RecordAddress string
	ManifestURI   string
	BlockSeqNo    uint32
}

// Sources is a complete resolution.
type Sources struct {
	Pointer
	Files            []manifest.File
	Compiler         manifest.Compiler
	CompilerVersion  string
	CompilerSettings json.RawMessage
	VerificationDate time.Time
	// ManifestURL is the URL the manifest was actually fetched from.
	ManifestURL string
}

// Lookup is one entry of the resolution log.
type Lookup struct {
	ID            string
	CodeHash      string
	Network       string
	Verifier      string
	Status        string
	RecordAddress string
	ManifestURI   string
	FileCount     int
	Error         string
	CreatedAt     time.Time
}

// LookupFilter contains filter options for listing lookups.
type LookupFilter struct {
	Status   string
	Network  string
	CodeHash string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// LookupList is a page of the resolution log.
type LookupList struct {
	Lookups    []Lookup
	HasMore    bool
	NextCursor string
}

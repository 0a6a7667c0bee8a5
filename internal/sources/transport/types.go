// Package transport provides HTTP request/response types for the sources domain.
package transport

import (
	"encoding/json"
	"time"

	"github.com/pendergraft/verisource/internal/sources/domain"
)

// FileResponse is one source file of a resolution.
type FileResponse struct {
	Name         string `json:"name"`
	Content      string `json:"content"`
	IsEntrypoint bool   `json:"isEntrypoint"`
}

// PointerResponse is the on-chain record of a code hash.
type PointerResponse struct {
	CodeHash      string `json:"codeHash"`
	Network       string `json:"network"`
	Verifier      string `json:"verifier"`
	RecordAddress string `json:"recordAddress"`
	ManifestURI   string `json:"manifestUri"`
	BlockSeqNo    uint32 `json:"blockSeqNo"`
}

// SourcesResponse is the HTTP response for a resolved code hash.
type SourcesResponse struct {
	PointerResponse
	Files            []FileResponse  `json:"files"`
	Compiler         string          `json:"compiler"`
	CompilerVersion  string          `json:"compilerVersion,omitempty"`
	CompilerSettings json.RawMessage `json:"compilerSettings,omitempty"`
	VerificationDate time.Time       `json:"verificationDate"`
	IPFSHttpLink     string          `json:"ipfsHttpLink"`
}

// LookupResponse is one resolution log entry.
type LookupResponse struct {
	ID            string    `json:"id"`
	CodeHash      string    `json:"codeHash"`
	Network       string    `json:"network"`
	Verifier      string    `json:"verifier"`
	Status        string    `json:"status"`
	RecordAddress string    `json:"recordAddress,omitempty"`
	ManifestURI   string    `json:"manifestUri,omitempty"`
	FileCount     int       `json:"fileCount"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PaginationResponse describes the position in a paginated listing.
type PaginationResponse struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// LookupListResponse is the HTTP response for the lookups listing.
type LookupListResponse struct {
	Data       []LookupResponse   `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// FromPointer converts a domain.Pointer to PointerResponse.
func FromPointer(p domain.Pointer) PointerResponse {
	return PointerResponse{
		CodeHash:      p.CodeHash,
		Network:       p.Network,
		Verifier:      p.Verifier,
		RecordAddress: p.RecordAddress,
		ManifestURI:   p.ManifestURI,
		BlockSeqNo:    p.BlockSeqNo,
	}
}

// FromSources converts domain.Sources to SourcesResponse.
func FromSources(s *domain.Sources) SourcesResponse {
	files := make([]FileResponse, len(s.Files))
	for i, f := range s.Files {
		files[i] = FileResponse{Name: f.Name, Content: f.Content, IsEntrypoint: f.IsEntrypoint}
	}
	return SourcesResponse{
		PointerResponse:  FromPointer(s.Pointer),
		Files:            files,
		Compiler:         string(s.Compiler),
		CompilerVersion:  s.CompilerVersion,
		CompilerSettings: s.CompilerSettings,
		VerificationDate: s.VerificationDate,
		IPFSHttpLink:     s.ManifestURL,
	}
}

// FromLookupList converts domain.LookupList to LookupListResponse.
func FromLookupList(l *domain.LookupList, limit int) LookupListResponse {
	data := make([]LookupResponse, len(l.Lookups))
	for i, lk := range l.Lookups {
		data[i] = LookupResponse(lk)
	}
	return LookupListResponse{
		Data: data,
		Pagination: PaginationResponse{
			Limit:      limit,
			HasMore:    l.HasMore,
			NextCursor: l.NextCursor,
		},
	}
}

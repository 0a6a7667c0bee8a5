package ton

import (
	"fmt"
)

// Payload is the stack returned by get_source_item_data:
// verifier id, code hash, registry address, content cell.
type Payload []any

const (
	// bookkeepingFields are the leading payload entries that carry registry
	// bookkeeping and are skipped when decoding content.
	bookkeepingFields = 3

	// DescriptorV1 is the only defined content format: an 8-bit version
	// followed by the manifest URI as a snake string.
	DescriptorV1 = 1
)

// ContentDescriptor is the decoded content cell of a source record.
type ContentDescriptor struct {
	Version     uint8
	ManifestURI string
}

// DecodeDescriptor decodes the content of a record payload. Versions other
// than DescriptorV1 are rejected; there is no fallback.
func DecodeDescriptor(p Payload) (*ContentDescriptor, error) {
	if len(p) <= bookkeepingFields {
		return nil, fmt.Errorf("%w: payload has %d entries, want at least %d", ErrDecode, len(p), bookkeepingFields+1)
	}

	content, err := asSlice(p[bookkeepingFields])
	if err != nil {
		return nil, fmt.Errorf("%w: content: %w", ErrDecode, err)
	}

	version, err := content.LoadUInt(8)
	if err != nil {
		return nil, fmt.Errorf("%w: reading version: %w", ErrDecode, err)
	}
	if version != DescriptorV1 {
		return nil, fmt.Errorf("%w: unsupported content version %d", ErrDecode, version)
	}

	uri, err := content.LoadStringSnake()
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest uri: %w", ErrDecode, err)
	}
	if uri == "" {
		return nil, fmt.Errorf("%w: empty manifest uri", ErrDecode)
	}

	return &ContentDescriptor{Version: DescriptorV1, ManifestURI: uri}, nil
}

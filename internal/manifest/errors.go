package manifest

import "errors"

var (
	// ErrManifest means the manifest document is valid JSON but not a
	// usable sources manifest.
	ErrManifest = errors.New("invalid manifest")

	// ErrFetch means the manifest or one of its source files could not be
	// retrieved or parsed.
	ErrFetch = errors.New("fetch failed")
)

package ton

import "errors"

// Errors returned while locating a source record. Causes are wrapped with
// %w so context cancellation stays detectable with errors.Is.
var (
	ErrNetwork  = errors.New("node request failed")
	ErrProtocol = errors.New("unexpected registry response")
	ErrDecode   = errors.New("cannot decode source record")
)

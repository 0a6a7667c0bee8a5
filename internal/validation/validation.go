// Package validation provides input validation for Verisource.
package validation

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// CodeHashSize is the length of a contract code hash in bytes.
const CodeHashSize = 32

// ParseCodeHash parses a code hash given as hex (optionally 0x-prefixed)
// or base64 in the standard or URL alphabet, padded or not.
func ParseCodeHash(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimSpace(s)
	if s == "" {
		return out, errors.New("code hash cannot be empty")
	}

	raw, err := decodeHash(s)
	if err != nil {
		return out, err
	}
	if len(raw) != CodeHashSize {
		return out, fmt.Errorf("code hash must be %d bytes, got %d", CodeHashSize, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHash(s string) ([]byte, error) {
	hexPart := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hexPart) == 2*CodeHashSize {
		if raw, err := hex.DecodeString(hexPart); err == nil {
			return raw, nil
		}
	}

	// '-' and '_' only appear in the URL alphabet, '+' and '/' only in the
	// standard one.
	enc := base64.RawStdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.RawURLEncoding
	}
	raw, err := enc.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, errors.New("code hash must be hex or base64")
	}
	return raw, nil
}

// Verifier ids are domain-like names such as "orbs.com".
var verifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateVerifier validates a verifier identity
func ValidateVerifier(v string) error {
	if v == "" {
		return errors.New("verifier cannot be empty")
	}
	if !verifierRegex.MatchString(v) {
		return errors.New("invalid verifier: must be 1-128 letters, digits, dots, hyphens or underscores")
	}
	return nil
}

// SafeFilename rejects source file names that would escape the directory
// they are written to.
func SafeFilename(name string) error {
	if name == "" {
		return errors.New("file name cannot be empty")
	}
	if strings.ContainsAny(name, "\\\x00") {
		return fmt.Errorf("invalid file name %q", name)
	}
	if path.IsAbs(name) {
		return fmt.Errorf("file name %q must be relative", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("file name %q escapes the output directory", name)
		}
	}
	return nil
}

// NormalizeVersion normalizes a version string (strips leading 'v')
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// CompilerVersion extracts the compiler version from a manifest's
// compilerSettings, e.g. {"funcVersion": "0.4.4"} for func. Valid semver
// versions are returned in canonical form without the leading 'v'; other
// non-empty values are returned as recorded.
func CompilerVersion(compiler string, settings json.RawMessage) string {
	if len(settings) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(settings, &fields); err != nil {
		return ""
	}

	raw, _ := fields[compiler+"Version"].(string)
	if raw == "" {
		return ""
	}
	v := "v" + NormalizeVersion(raw)
	if !semver.IsValid(v) {
		return raw
	}
	return strings.TrimPrefix(semver.Canonical(v), "v")
}

// Package cursor encodes scan positions as opaque, URL-safe tokens.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned when a token cannot be decoded.
var ErrInvalid = errors.New("invalid cursor")

// Encode serializes a position into a token.
func Encode(pos any) (string, error) {
	raw, err := json.Marshal(pos)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses token into pos. URL and standard alphabet tokens are
// accepted, padded or not.
func Decode(token string, pos any) error {
	raw, err := decodeBase64(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(raw, pos); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

var encodings = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.StdEncoding,
}

func decodeBase64(token string) ([]byte, error) {
	var firstErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(token)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// ClampLimit applies a default to non-positive page sizes and caps the rest.
func ClampLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

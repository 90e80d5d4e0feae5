package security

import (
	"errors"
	"fmt"
)

// Payload limits applied to inbound webhook bodies.
const (
	DefaultMaxMessageSize = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth   = 32
)

// Validation errors.
var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
)

// PayloadLimits bounds an inbound webhook payload. Zero fields use the
// defaults.
type PayloadLimits struct {
	MaxBytes int
	MaxDepth int
}

// ValidatePayload applies both the size and the nesting limit to data.
// Telegram updates and GitHub deliveries go through it before decoding.
func ValidatePayload(data []byte, limits PayloadLimits) error {
	if err := ValidateMessageSize(data, limits.MaxBytes); err != nil {
		return err
	}
	return ValidateJSONDepth(data, limits.MaxDepth)
}

// ValidateMessageSize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxMessageSize is used.
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper than
// limit levels. It scans bytes without decoding, skipping string contents,
// and reports unbalanced brackets as ErrInvalidJSON. If limit is <= 0,
// DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
			if len(stack) > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, len(stack), limit)
			}
		case '}', ']':
			open := byte('{')
			if c == ']' {
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidJSON, c, i)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inString || len(stack) > 0 {
		return fmt.Errorf("%w: unexpected end of input", ErrInvalidJSON)
	}
	return nil
}

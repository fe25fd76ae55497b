package encode

import (
	"fmt"
	"strconv"
)

// ParseUint32 parses a 32-bit unsigned integer from user input. The base is inferred from the prefix ('0x', '0o',
// '0b' or a leading '0' for octal), so offsets can be written in hex as they're printed.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number '%s': %w", s, err)
	}

	return uint32(v), nil
}

// ParseIndex parses a non-negative descriptor index from user input, with the same base rules as [ParseUint32]
func ParseIndex(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid index '%s': %w", s, err)
	}

	return int(v), nil
}

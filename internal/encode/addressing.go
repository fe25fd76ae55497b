package encode

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrBelowBase = errors.New("absolute address lies below the addressing base")
	ErrOverflow  = errors.New("address does not fit in 32 bits")
)

// AsAbsolute translates a descriptor start as stored on disk into an absolute image offset. Every BPDT descriptor
// start is stored relative to an addressing base, which is not necessarily the offset of the table holding it.
func AsAbsolute(relative uint32, base uint32) (uint32, error) {
	absolute := uint64(relative) + uint64(base)
	if absolute > math.MaxUint32 {
		return 0, fmt.Errorf("%w: 0x%X + 0x%X", ErrOverflow, relative, base)
	}

	return uint32(absolute), nil
}

// AsRelative is the inverse of [AsAbsolute].
func AsRelative(absolute uint32, base uint32) (uint32, error) {
	if absolute < base {
		return 0, fmt.Errorf("%w: 0x%X < 0x%X", ErrBelowBase, absolute, base)
	}

	return absolute - base, nil
}

// End returns start+size, failing if the extent would run past the 32-bit address space
func End(start uint32, size uint32) (uint32, error) {
	end := uint64(start) + uint64(size)
	if end > math.MaxUint32 {
		return 0, fmt.Errorf("%w: 0x%X + 0x%X", ErrOverflow, start, size)
	}

	return uint32(end), nil
}

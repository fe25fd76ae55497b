package ifwi

import (
	"errors"
	"github.com/davejbax/go-ifwi/internal/spec"
)

var (
	// ErrFormat is returned when the image does not hold a BPDT where one is expected, or holds one this package
	// cannot reproduce byte-for-byte. It is never recoverable.
	ErrFormat        = errors.New("invalid BPDT format")
	ErrBadSignature  = errors.New("invalid BPDT header signature")
	ErrBadVersion    = errors.New("unknown BPDT version")
	ErrSelfCheck     = errors.New("BPDT self-check failed")
	ErrTableTooLarge = errors.New("BPDT descriptor table does not fit in its slot")

	// ErrUnsupported is returned for operations that are recognised but not implemented. It is always returned before
	// the image is modified by the call that failed.
	ErrUnsupported = errors.New("operation not supported")

	ErrIndexOutOfRange   = errors.New("descriptor index out of range")
	ErrInvalidRequest    = errors.New("invalid move request")
	ErrUnknownDescriptor = errors.New("descriptor does not belong to this image")

	ErrInvalidTypeCode = spec.ErrInvalidTypeCode
	ErrInvalidTypeName = spec.ErrInvalidTypeName
)

package ifwi

import (
	"fmt"
	"github.com/davejbax/go-ifwi/internal/encode"
	"github.com/davejbax/go-ifwi/internal/spec"
)

type PartitionType = spec.PartitionType

const PartitionTypeSBPDT = spec.PartitionTypeSBPDT

// ParsePartitionTypeName returns the partition type with the given symbolic name, e.g. "UCOD" or "S_BPDT"
func ParsePartitionTypeName(name string) (PartitionType, error) {
	return spec.ParsePartitionTypeName(name)
}

// PartitionTypes lists every partition type understood by this package
func PartitionTypes() []PartitionType {
	return spec.PartitionTypes()
}

// Descriptor is one row of a BPDT. Start is always an absolute image offset; translation to and from the stored
// relative value happens when the owning [Directory] is decoded or encoded.
//
// A Descriptor with a zero size is an unused slot.
type Descriptor struct {
	Type  PartitionType
	Start uint32
	Size  uint32
}

func NewDescriptor(t PartitionType, start uint32, size uint32) (*Descriptor, error) {
	if _, err := encode.End(start, size); err != nil {
		return nil, fmt.Errorf("invalid descriptor extent: %w", err)
	}

	return &Descriptor{Type: t, Start: start, Size: size}, nil
}

func NewDescriptorWithEnd(t PartitionType, start uint32, end uint32) (*Descriptor, error) {
	if end < start {
		return nil, fmt.Errorf("%w: end 0x%X is before start 0x%X", ErrInvalidRequest, end, start)
	}

	return &Descriptor{Type: t, Start: start, Size: end - start}, nil
}

// End is the first offset after the partition.
func (d *Descriptor) End() uint32 {
	return d.Start + d.Size
}

func (d *Descriptor) IsEmpty() bool {
	return d.Size == 0
}

// Contains reports whether other lies entirely within d
func (d *Descriptor) Contains(other *Descriptor) bool {
	return d.Start <= other.Start && other.End() <= d.End()
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s@0x%X+0x%X", d.Type, d.Start, d.Size)
}

func decodeDescriptor(buf []byte, base uint32) (*Descriptor, error) {
	entry, err := spec.UnpackDescriptorEntry(buf)
	if err != nil {
		return nil, err
	}

	t, err := spec.ParsePartitionTypeCode(entry.Type)
	if err != nil {
		return nil, err
	}

	start, err := encode.AsAbsolute(entry.Start, base)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor start: %w", err)
	}

	return &Descriptor{Type: t, Start: start, Size: entry.Size}, nil
}

func (d *Descriptor) encode(buf []byte, base uint32) error {
	start, err := encode.AsRelative(d.Start, base)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", d, err)
	}

	entry := &spec.DescriptorEntry{
		Type:  uint32(d.Type),
		Start: start,
		Size:  d.Size,
	}

	return spec.PackInto(buf, entry)
}

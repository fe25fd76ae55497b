package ifwi

import (
	"fmt"
	"github.com/davejbax/go-ifwi/internal/spec"
	"strings"
)

// Directory is a single BPDT or secondary BPDT, occupying a [spec.DirectorySize] slot in the image.
//
// A Directory owns its descriptors: the pointers in Descriptors are the same ones handed out by [Image.Descriptor],
// and must never be replaced by copies.
type Directory struct {
	Descriptors []*Descriptor

	// FirstID is the global index of the first descriptor in this directory
	FirstID int

	signature   uint32
	reserved    uint16
	checksum    uint16
	ifwiVersion uint32
	fitVersion  [4]uint16

	offset uint32
	base   uint32

	// owner is the S-BPDT descriptor that points at a secondary directory, and nil for a primary directory
	owner *Descriptor
}

// DecodeDirectory decodes the directory held in buf, which must start with the BPDT header. offset is the absolute
// position of buf in the image, and base is the addressing base for descriptor starts: the directory's own offset
// for a primary BPDT, or the containing primary BPDT's offset for a secondary one.
func DecodeDirectory(buf []byte, offset uint32, base uint32) (*Directory, error) {
	header, err := spec.UnpackHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if !header.HasValidSignature() {
		return nil, fmt.Errorf("%w: %w 0x%X at 0x%X", ErrFormat, ErrBadSignature, header.Signature, offset)
	}

	if header.Version != spec.Version {
		return nil, fmt.Errorf("%w: %w %d at 0x%X", ErrFormat, ErrBadVersion, header.Version, offset)
	}

	count := int(header.DescriptorCount)
	if count > spec.MaxDescriptors || len(buf) < spec.DescriptorEntryOffset(count) {
		return nil, fmt.Errorf("%w: %w (%d descriptors at 0x%X)", ErrFormat, ErrTableTooLarge, count, offset)
	}

	d := &Directory{
		Descriptors: make([]*Descriptor, 0, count),
		signature:   header.Signature,
		reserved:    header.Reserved,
		checksum:    header.Checksum,
		ifwiVersion: header.IFWIVersion,
		fitVersion:  header.FITVersion,
		offset:      offset,
		base:        base,
	}

	for i := 0; i < count; i++ {
		descriptor, err := decodeDescriptor(buf[spec.DescriptorEntryOffset(i):], base)
		if err != nil {
			return nil, fmt.Errorf("could not decode descriptor %d of BPDT at 0x%X: %w", i, offset, err)
		}

		d.Descriptors = append(d.Descriptors, descriptor)
	}

	return d, nil
}

// Encode packs the header and descriptors into buf. Bytes past the last descriptor are left untouched, so buf
// should normally come from [spec.NewSlot].
func (d *Directory) Encode(buf []byte) error {
	if len(d.Descriptors) > spec.MaxDescriptors {
		return fmt.Errorf("%w: %d descriptors", ErrTableTooLarge, len(d.Descriptors))
	}

	header := &spec.Header{
		Signature:       d.signature,
		DescriptorCount: uint16(len(d.Descriptors)),
		Version:         spec.Version,
		Reserved:        d.reserved,
		Checksum:        d.Checksum(),
		IFWIVersion:     d.ifwiVersion,
		FITVersion:      d.fitVersion,
	}

	if err := spec.PackInto(buf, header); err != nil {
		return fmt.Errorf("could not encode BPDT header: %w", err)
	}

	for i, descriptor := range d.Descriptors {
		if err := descriptor.encode(buf[spec.DescriptorEntryOffset(i):], d.base); err != nil {
			return fmt.Errorf("could not encode descriptor %d of BPDT at 0x%X: %w", i, d.Offset(), err)
		}
	}

	return nil
}

// Checksum returns the checksum recorded in the header. It is not recomputed when descriptors change: the algorithm
// has not been verified against real firmware tooling.
func (d *Directory) Checksum() uint16 {
	return d.checksum
}

// Offset is the absolute position of the directory's slot. A secondary directory lives at the start of the S-BPDT
// partition that holds it, so it follows that partition when it is moved.
func (d *Directory) Offset() uint32 {
	if d.owner != nil {
		return d.owner.Start
	}

	return d.offset
}

// BaseOffset is the addressing base used for this directory's descriptor starts
func (d *Directory) BaseOffset() uint32 {
	return d.base
}

func (d *Directory) IsSecondary() bool {
	return d.owner != nil
}

func (d *Directory) IFWIVersion() uint32 {
	return d.ifwiVersion
}

func (d *Directory) FITVersion() [4]uint16 {
	return d.fitVersion
}

// contains reports whether the global index i falls within this directory
func (d *Directory) contains(i int) bool {
	return i >= d.FirstID && i-d.FirstID < len(d.Descriptors)
}

func (d *Directory) String() string {
	name := "BPDT"
	if d.IsSecondary() {
		name = "S-BPDT"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-6s @ 0x%X  (FIT v%d.%d.%d.%d)\n", name, d.Offset(),
		d.fitVersion[0], d.fitVersion[1], d.fitVersion[2], d.fitVersion[3])
	sb.WriteString("  # Type            Start     Size      End")

	for i, descriptor := range d.Descriptors {
		fmt.Fprintf(&sb, "\n %2d %-12s %8X %8X %8X", d.FirstID+i, descriptor.Type, descriptor.Start, descriptor.Size,
			descriptor.End())
	}

	return sb.String()
}

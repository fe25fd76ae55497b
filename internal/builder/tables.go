package builder

import (
	"bytes"
	"cmp"
	"fmt"
	"github.com/davejbax/go-ifwi/internal/encode"
	"github.com/davejbax/go-ifwi/internal/spec"
	"io"
	"slices"
)

// Partition is a descriptor to be written into a [Table]. Start is absolute.
type Partition struct {
	Type  spec.PartitionType
	Start uint32
	Size  uint32
}

type Table struct {
	Offset uint32

	// Base is the addressing base that partition starts are written relative to
	Base uint32

	// Header supplies the fields not derived from the partitions; DescriptorCount is always overwritten
	Header spec.Header

	Partitions []Partition
}

// NewTable creates a table at offset whose descriptor starts are relative to base
func NewTable(offset uint32, base uint32, partitions ...Partition) *Table {
	return &Table{
		Offset: offset,
		Base:   base,
		Header: spec.Header{
			Signature: spec.Signature,
			Version:   spec.Version,
		},
		Partitions: partitions,
	}
}

// NewPrimaryTable creates a table at offset, with descriptor starts relative to the table itself
func NewPrimaryTable(offset uint32, partitions ...Partition) *Table {
	return NewTable(offset, offset, partitions...)
}

// Slot encodes the table into an erased [spec.DirectorySize] slot
func (t *Table) Slot() ([]byte, error) {
	if len(t.Partitions) > spec.MaxDescriptors {
		return nil, fmt.Errorf("too many partitions for one table: %d", len(t.Partitions))
	}

	slot := spec.NewSlot()

	header := t.Header
	header.DescriptorCount = uint16(len(t.Partitions))
	if err := spec.PackInto(slot, &header); err != nil {
		return nil, fmt.Errorf("could not encode table header: %w", err)
	}

	for i, p := range t.Partitions {
		start, err := encode.AsRelative(p.Start, t.Base)
		if err != nil {
			return nil, fmt.Errorf("could not encode partition %d: %w", i, err)
		}

		entry := &spec.DescriptorEntry{Type: uint32(p.Type), Start: start, Size: p.Size}
		if err := spec.PackInto(slot[spec.DescriptorEntryOffset(i):], entry); err != nil {
			return nil, fmt.Errorf("could not encode partition %d: %w", i, err)
		}
	}

	return slot, nil
}

type region struct {
	offset uint32
	data   []byte
}

// Flash lays out tables and partition contents in an SPI image of a fixed size
type Flash struct {
	size    uint32
	regions []region
}

func NewFlash(size uint32) *Flash {
	return &Flash{size: size}
}

func (f *Flash) AddTable(t *Table) error {
	slot, err := t.Slot()
	if err != nil {
		return fmt.Errorf("could not build table at 0x%X: %w", t.Offset, err)
	}

	f.regions = append(f.regions, region{offset: t.Offset, data: slot})
	return nil
}

// AddPayload places data at offset. Payloads must not overlap each other or any table.
func (f *Flash) AddPayload(offset uint32, data []byte) {
	f.regions = append(f.regions, region{offset: offset, data: data})
}

func (f *Flash) WriteTo(w io.Writer) (int64, error) {
	regions := slices.Clone(f.regions)
	slices.SortStableFunc(regions, func(a, b region) int {
		return cmp.Compare(a.offset, b.offset)
	})

	fw := NewFlashWriter(w)
	for _, r := range regions {
		if uint64(r.offset)+uint64(len(r.data)) > uint64(f.size) {
			return fw.BytesWritten(), fmt.Errorf("region at 0x%X runs past the end of a 0x%X byte image", r.offset, f.size)
		}

		if err := fw.WriteRegion(int64(r.offset), r.data); err != nil {
			return fw.BytesWritten(), fmt.Errorf("could not write region at 0x%X: %w", r.offset, err)
		}
	}

	if err := fw.Fill(int64(f.size)); err != nil {
		return fw.BytesWritten(), err
	}

	return fw.BytesWritten(), nil
}

func (f *Flash) Bytes() ([]byte, error) {
	var buff bytes.Buffer
	if _, err := f.WriteTo(&buff); err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// Pattern returns size bytes counting up from seed, so that moved partitions can be recognised
func Pattern(seed byte, size uint32) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}

	return data
}

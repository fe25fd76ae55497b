package spec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/itchio/headway/counter"
	"github.com/lunixbochs/struc"
	"io"
)

const (
	// Signature identifies a BPDT (or S-BPDT) header. Only the low 16 bits carry the signature; the upper half of
	// the word is kept verbatim.
	Signature = 0x55AA

	// SignatureMask selects the part of [Header.Signature] that must equal [Signature]
	SignatureMask = 0xFFFF

	// Version is the only BPDT layout version understood by this package
	Version = 1

	// DirectorySize is the size of the slot a directory occupies on flash, regardless of how many descriptors it
	// holds. Bytes past the last descriptor are erased flash.
	DirectorySize = 512

	// FillByte is the value of erased SPI flash
	FillByte = 0xFF

	// HeaderSize and DescriptorEntrySize are the packed sizes of [Header] and [DescriptorEntry]
	HeaderSize          = 24
	DescriptorEntrySize = 12

	// MaxDescriptors is the number of descriptors that fit in a directory slot after the header
	MaxDescriptors = (DirectorySize - HeaderSize) / DescriptorEntrySize
)

var ErrShortBuffer = errors.New("buffer too small for structure")

var options = &struc.Options{Order: binary.LittleEndian}

// Header is the fixed part of a Boot Partition Descriptor Table. It is followed directly by DescriptorCount
// [DescriptorEntry] structures.
//
// The checksum is carried verbatim and never recomputed.
type Header struct {
	Signature       uint32
	DescriptorCount uint16
	Version         uint16
	Reserved        uint16
	Checksum        uint16
	IFWIVersion     uint32
	FITVersion      [4]uint16
}

func (h *Header) HasValidSignature() bool {
	return h.Signature&SignatureMask == Signature
}

func (h *Header) WriteTo(w io.Writer) (int64, error) {
	cw := counter.NewWriter(w)
	if err := struc.PackWithOptions(cw, h, options); err != nil {
		return cw.Count(), fmt.Errorf("could not pack BPDT header: %w", err)
	}

	return cw.Count(), nil
}

// DescriptorEntry is a single row of a BPDT.
//
// Start is relative to the addressing base of the table the entry belongs to: for a primary BPDT that is the BPDT's
// own offset, and for a secondary BPDT it is the offset of the primary BPDT that contains it.
type DescriptorEntry struct {
	Type  uint32
	Start uint32
	Size  uint32
}

func (d *DescriptorEntry) WriteTo(w io.Writer) (int64, error) {
	cw := counter.NewWriter(w)
	if err := struc.PackWithOptions(cw, d, options); err != nil {
		return cw.Count(), fmt.Errorf("could not pack descriptor entry: %w", err)
	}

	return cw.Count(), nil
}

// UnpackHeader reads a [Header] from the start of buf. No validation is done here.
func UnpackHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortBuffer
	}

	var h Header
	if err := struc.UnpackWithOptions(bytes.NewReader(buf[:HeaderSize]), &h, options); err != nil {
		return nil, fmt.Errorf("could not unpack BPDT header: %w", err)
	}

	return &h, nil
}

// UnpackDescriptorEntry reads a [DescriptorEntry] from the start of buf.
func UnpackDescriptorEntry(buf []byte) (*DescriptorEntry, error) {
	if len(buf) < DescriptorEntrySize {
		return nil, ErrShortBuffer
	}

	var d DescriptorEntry
	if err := struc.UnpackWithOptions(bytes.NewReader(buf[:DescriptorEntrySize]), &d, options); err != nil {
		return nil, fmt.Errorf("could not unpack descriptor entry: %w", err)
	}

	return &d, nil
}

// PackInto writes v (a [Header] or [DescriptorEntry]) at the start of buf, which must be large enough.
func PackInto(buf []byte, v io.WriterTo) error {
	var out bytes.Buffer
	if _, err := v.WriteTo(&out); err != nil {
		return err
	}

	if len(buf) < out.Len() {
		return ErrShortBuffer
	}

	copy(buf, out.Bytes())
	return nil
}

// NewSlot returns an erased directory slot
func NewSlot() []byte {
	return bytes.Repeat([]byte{FillByte}, DirectorySize)
}

// DescriptorEntryOffset is the offset within a directory slot of the i-th descriptor entry
func DescriptorEntryOffset(i int) int {
	return HeaderSize + i*DescriptorEntrySize
}

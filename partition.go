package ifwi

import (
	"fmt"
	"io"
	"math"
)

// ReadPartition returns the contents of the partition with the given global index
func (i *Image) ReadPartition(index int) ([]byte, error) {
	d, err := i.Descriptor(index)
	if err != nil {
		return nil, err
	}

	data := make([]byte, d.Size)
	if err := i.readAt(data, d.Start); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", d, err)
	}

	return data, nil
}

// Extract writes the contents of the partition with the given global index to w
func (i *Image) Extract(index int, w io.Writer) (int64, error) {
	d, err := i.Descriptor(index)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(w, io.NewSectionReader(i.store, int64(d.Start), int64(d.Size)))
	if err != nil {
		return written, fmt.Errorf("could not extract %s: %w", d, err)
	}

	if written != int64(d.Size) {
		return written, fmt.Errorf("could not extract %s: %w", d, io.ErrUnexpectedEOF)
	}

	return written, nil
}

// Update replaces the contents of the partition with the given global index. If the payload is a different size to
// the partition, the partition is resized first with [Image.Move], which may move other partitions.
func (i *Image) Update(index int, payload []byte) error {
	d, err := i.Descriptor(index)
	if err != nil {
		return err
	}

	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: payload of %d bytes is too large", ErrInvalidRequest, len(payload))
	}

	if size := uint32(len(payload)); size != d.Size {
		if err := i.Move(d, MoveRequest{Size: &size}); err != nil {
			return fmt.Errorf("could not resize %s for update: %w", d, err)
		}
	}

	if err := i.writeAt(payload, d.Start); err != nil {
		return fmt.Errorf("could not write %s: %w", d, err)
	}

	return nil
}

// Add would insert a new partition. It is not implemented.
func (i *Image) Add(t PartitionType, start uint32, size uint32) error {
	return fmt.Errorf("%w: adding a partition (%s at 0x%X+0x%X)", ErrUnsupported, t, start, size)
}

// Delete would remove a partition. It is not implemented.
func (i *Image) Delete(index int) error {
	return fmt.Errorf("%w: deleting partition %d", ErrUnsupported, index)
}

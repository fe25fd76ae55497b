package ifwi

import (
	"fmt"
	"github.com/davejbax/go-ifwi/internal/encode"
	"github.com/sirupsen/logrus"
	"strings"
)

// Real images nest S-BPDTs at most one level deep, so anything close to this is a layout we don't understand
const maxMoveDepth = 64

// MoveRequest describes the new extent of a partition. Nil fields keep the current value: Start defaults to the
// current start, and the size defaults to the current size unless Size or End is given. At most one of Size and End
// may be set.
type MoveRequest struct {
	Start *uint32
	Size  *uint32
	End   *uint32
}

// Uint32 returns a pointer to v, for use in [MoveRequest]
func Uint32(v uint32) *uint32 {
	return &v
}

// Move relocates and/or resizes target, which must be a descriptor of this image, within the image.
//
// Any partition in the way of the new extent is pushed forward to start at the new end, recursively. If target lives
// inside an S-BPDT partition that is too small for the new extent, the S-BPDT partition is grown to reach the new
// end. If target is itself an S-BPDT, the partitions inside it are shifted along with it.
//
// Moving a partition backwards and shrinking an S-BPDT are not supported and fail with [ErrUnsupported] before
// anything is changed.
//
// Every step commits the directories before copying the partition's bytes, so an interrupted move leaves tables
// that describe the new layout. Steps already completed are not rolled back if a later one fails, and there is no
// journal: an error part way through a nested move can leave partitions whose bytes have not reached the location
// their descriptor points at.
//
// Moving an S-BPDT partition writes the directories twice: once before its bytes are copied, and again afterwards,
// since the copied bytes include the old contents of the S-BPDT's own table.
func (i *Image) Move(target *Descriptor, req MoveRequest) error {
	if !i.owns(target) {
		return ErrUnknownDescriptor
	}

	if req.Size != nil && req.End != nil {
		return fmt.Errorf("%w: only one of size and end may be given", ErrInvalidRequest)
	}

	return i.move(target, req, 0)
}

func (i *Image) move(target *Descriptor, req MoveRequest, depth int) error {
	if depth > maxMoveDepth {
		return fmt.Errorf("%w: moving %s needs more than %d nested moves", ErrUnsupported, target, maxMoveDepth)
	}

	start := target.Start
	if req.Start != nil {
		start = *req.Start
	}

	size := target.Size
	switch {
	case req.Size != nil:
		size = *req.Size
	case req.End != nil:
		if *req.End < start {
			return fmt.Errorf("%w: end 0x%X is before start 0x%X", ErrInvalidRequest, *req.End, start)
		}

		size = *req.End - start
	}

	end, err := encode.End(start, size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	log := i.log.WithFields(logrus.Fields{
		"type":  target.Type.String(),
		"from":  fmt.Sprintf("0x%X+0x%X", target.Start, target.Size),
		"to":    fmt.Sprintf("0x%X+0x%X", start, size),
		"depth": depth,
	})
	log.Infof("%sMoving/resizing %s", strings.Repeat("-", depth), target.Type)

	if start < target.Start {
		return fmt.Errorf("%w: moving %s backwards from 0x%X to 0x%X", ErrUnsupported, target.Type, target.Start, start)
	}

	if target.Type == PartitionTypeSBPDT && size < target.Size {
		return fmt.Errorf("%w: shrinking %s from 0x%X to 0x%X", ErrUnsupported, target.Type, target.Size, size)
	}

	if start == target.Start && size == target.Size {
		return nil
	}

	// Nothing else needs to move when the result is empty, or when it stays within the current extent
	withinExtent := size <= target.Size && start-target.Start <= target.Size-size
	if size != 0 && !withinExtent {
		if err := i.clearWay(target, start, end, depth, log); err != nil {
			return err
		}
	}

	data := make([]byte, target.Size)
	if err := i.readAt(data, target.Start); err != nil {
		return fmt.Errorf("could not read %s: %w", target, err)
	}

	target.Start = start
	target.Size = size
	if err := i.Commit(); err != nil {
		return fmt.Errorf("could not commit new location of %s: %w", target, err)
	}

	if uint32(len(data)) > size {
		data = data[:size]
	}

	if err := i.writeAt(data, target.Start); err != nil {
		return fmt.Errorf("could not copy %s to new location: %w", target, err)
	}

	// The copy of an S-BPDT partition includes the old copy of its own table
	if target.Type == PartitionTypeSBPDT {
		if err := i.Commit(); err != nil {
			return fmt.Errorf("could not commit S-BPDT after copying %s: %w", target, err)
		}
	}

	return nil
}

// clearWay makes room for target to occupy [start, end), by growing the S-BPDT partitions containing it, pushing
// forward the partitions in the way, and shifting the partitions nested in it.
//
// Each recursive move resolves its own conflicts before returning, and sees the descriptor positions as already
// updated by earlier moves, so a single pass in index order is enough.
func (i *Image) clearWay(target *Descriptor, start uint32, end uint32, depth int, log logrus.FieldLogger) error {
	for _, d := range i.Descriptors() {
		if d == target || d.IsEmpty() {
			continue
		}

		switch {
		case d.Type == PartitionTypeSBPDT && d.Contains(target) && d.End() < end:
			// d holds target, but is too small for target's new extent
			if err := i.move(d, MoveRequest{Start: Uint32(d.Start), End: Uint32(end)}, depth+1); err != nil {
				return err
			}

		case target.End() <= d.Start && d.Start < end && start < d.End():
			// d comes after target, and is in the way of its new extent
			if err := i.move(d, MoveRequest{Start: Uint32(end)}, depth+1); err != nil {
				return err
			}

		case target.Type == PartitionTypeSBPDT && target.Contains(d):
			// d's bytes move with the S-BPDT partition's bytes, so only the descriptor is updated here
			log.WithField("nested", d.Type.String()).Debugf("%sShifting %s", strings.Repeat("-", depth+1), d.Type)
			d.Start += start - target.Start
		}
	}

	return nil
}

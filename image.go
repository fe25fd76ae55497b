package ifwi

import (
	"errors"
	"fmt"
	"github.com/davejbax/go-ifwi/internal/spec"
	"github.com/sirupsen/logrus"
	"io"
	"iter"
	"strings"
)

// DefaultPrimaryOffsets are the absolute offsets of the primary BPDTs in an IFWI SPI image
var DefaultPrimaryOffsets = []uint32{0x100000, 0x800000}

// Storage is the random-access byte store holding the SPI image. Both [os.File] and afero files satisfy it.
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// Image is the set of BPDTs found in an SPI image, in discovery order: each primary directory is followed by the
// secondary directories it points at.
type Image struct {
	directories []*Directory
	store       Storage
	log         logrus.FieldLogger
}

type Option func(*openOptions)

type openOptions struct {
	primaryOffsets []uint32
	logger         logrus.FieldLogger
}

// WithPrimaryOffsets overrides [DefaultPrimaryOffsets]
func WithPrimaryOffsets(offsets ...uint32) Option {
	return func(o *openOptions) {
		o.primaryOffsets = offsets
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// Open discovers every BPDT in store. Each directory is re-encoded straight after decoding and compared with the raw
// slot; any difference means the image is not in a format we can safely rewrite, and Open fails with [ErrSelfCheck].
func Open(store Storage, opts ...Option) (*Image, error) {
	o := &openOptions{
		primaryOffsets: DefaultPrimaryOffsets,
		logger:         logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	img := &Image{store: store, log: o.logger}

	for _, offset := range o.primaryOffsets {
		primary, err := img.discover(offset, offset, nil)
		if err != nil {
			return nil, err
		}

		// Secondary directories are appended while iterating, but primary.Descriptors itself is not modified
		for _, d := range primary.Descriptors {
			if d.Type != PartitionTypeSBPDT {
				continue
			}

			if _, err := img.discover(d.Start, offset, d); err != nil {
				return nil, fmt.Errorf("could not load S-BPDT referenced by BPDT at 0x%X: %w", offset, err)
			}
		}
	}

	return img, nil
}

func (i *Image) discover(offset uint32, base uint32, owner *Descriptor) (*Directory, error) {
	raw := make([]byte, spec.DirectorySize)
	if err := i.readAt(raw, offset); err != nil {
		return nil, fmt.Errorf("could not read BPDT at 0x%X: %w", offset, err)
	}

	dir, err := DecodeDirectory(raw, offset, base)
	if err != nil {
		return nil, err
	}

	dir.owner = owner
	dir.FirstID = i.Len()

	check := spec.NewSlot()
	if err := dir.Encode(check); err != nil {
		return nil, fmt.Errorf("%w: %w at 0x%X: %w", ErrFormat, ErrSelfCheck, offset, err)
	}

	if string(check) != string(raw) {
		return nil, fmt.Errorf("%w: %w at 0x%X", ErrFormat, ErrSelfCheck, offset)
	}

	i.log.WithFields(logrus.Fields{
		"offset":      fmt.Sprintf("0x%X", offset),
		"base":        fmt.Sprintf("0x%X", base),
		"secondary":   owner != nil,
		"descriptors": len(dir.Descriptors),
		"first_id":    dir.FirstID,
	}).Debug("Loaded BPDT")

	i.directories = append(i.directories, dir)
	return dir, nil
}

// Directories returns the directories in discovery order. The slice is a copy, but the directories are not.
func (i *Image) Directories() []*Directory {
	dirs := make([]*Directory, len(i.directories))
	copy(dirs, i.directories)
	return dirs
}

// Len is the number of descriptors over all directories
func (i *Image) Len() int {
	total := 0
	for _, d := range i.directories {
		total += len(d.Descriptors)
	}

	return total
}

// Locate resolves a global descriptor index to a (directory index, index within directory) pair
func (i *Image) Locate(index int) (int, int, error) {
	for dirIndex, d := range i.directories {
		if d.contains(index) {
			return dirIndex, index - d.FirstID, nil
		}
	}

	return 0, 0, fmt.Errorf("%w: %d (image has %d descriptors)", ErrIndexOutOfRange, index, i.Len())
}

// Descriptor returns the descriptor with the given global index. The returned pointer is the one owned by its
// directory; changes to it are written out by the next [Image.Commit].
func (i *Image) Descriptor(index int) (*Descriptor, error) {
	dirIndex, local, err := i.Locate(index)
	if err != nil {
		return nil, err
	}

	return i.directories[dirIndex].Descriptors[local], nil
}

// Descriptors iterates over every descriptor in global index order
func (i *Image) Descriptors() iter.Seq2[int, *Descriptor] {
	return func(yield func(int, *Descriptor) bool) {
		for _, dir := range i.directories {
			for local, d := range dir.Descriptors {
				if !yield(dir.FirstID+local, d) {
					return
				}
			}
		}
	}
}

func (i *Image) owns(target *Descriptor) bool {
	for _, d := range i.Descriptors() {
		if d == target {
			return true
		}
	}

	return false
}

// Commit writes every directory back to its slot, in discovery order. Each directory is a single write, but there is
// no transaction across directories: a failure part way through leaves earlier directories written.
func (i *Image) Commit() error {
	for _, dir := range i.directories {
		slot := spec.NewSlot()
		if err := dir.Encode(slot); err != nil {
			return fmt.Errorf("could not encode BPDT at 0x%X: %w", dir.Offset(), err)
		}

		if _, err := i.store.WriteAt(slot, int64(dir.Offset())); err != nil {
			return fmt.Errorf("could not write BPDT at 0x%X: %w", dir.Offset(), err)
		}
	}

	return nil
}

func (i *Image) readAt(buf []byte, offset uint32) error {
	n, err := i.store.ReadAt(buf, int64(offset))
	if n == len(buf) {
		// ReaderAt may report io.EOF alongside a full read at the end of the store
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return err
}

func (i *Image) writeAt(buf []byte, offset uint32) error {
	_, err := i.store.WriteAt(buf, int64(offset))
	return err
}

func (i *Image) String() string {
	parts := make([]string, len(i.directories))
	for n, dir := range i.directories {
		parts[n] = dir.String()
	}

	return strings.Join(parts, "\n\n")
}

// WriteTo writes the text listing of every directory and descriptor to w
func (i *Image) WriteTo(w io.Writer) (int64, error) {
	written, err := io.WriteString(w, i.String()+"\n")
	if err != nil {
		return int64(written), fmt.Errorf("could not write partition table listing: %w", err)
	}

	return int64(written), nil
}

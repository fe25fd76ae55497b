package builder

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/davejbax/go-ifwi/internal/spec"
	"github.com/itchio/headway/counter"
	"io"
)

// FlashWriter writes regions of an SPI image in ascending offset order, filling the gaps between them with erased
// flash.
type FlashWriter struct {
	wrapped *counter.Writer
}

var errNonSequentialWrite = errors.New("cannot write regions in non-sequential order or rewrite existing regions")

func NewFlashWriter(wrapped io.Writer) *FlashWriter {
	return &FlashWriter{wrapped: counter.NewWriter(wrapped)}
}

// Offset is the offset of the next byte to be written
func (w *FlashWriter) Offset() int64 {
	return w.wrapped.Count()
}

// Fill writes erased flash up to (but not including) offset
func (w *FlashWriter) Fill(offset int64) error {
	if offset < w.Offset() {
		return errNonSequentialWrite
	}

	if gap := offset - w.Offset(); gap > 0 {
		if _, err := io.Copy(w.wrapped, io.LimitReader(erased{}, gap)); err != nil {
			return fmt.Errorf("failed to write fill prior to region: %w", err)
		}
	}

	return nil
}

// WriteRegion writes contents at offset, after filling any gap since the previous region
func (w *FlashWriter) WriteRegion(offset int64, contents []byte) error {
	if err := w.Fill(offset); err != nil {
		return err
	}

	if _, err := w.wrapped.Write(contents); err != nil {
		return fmt.Errorf("failed to write region at 0x%X: %w", offset, err)
	}

	return nil
}

func (w *FlashWriter) BytesWritten() int64 {
	return w.wrapped.Count()
}

type erased struct{}

func (erased) Read(p []byte) (int, error) {
	copy(p, bytes.Repeat([]byte{spec.FillByte}, len(p)))
	return len(p), nil
}

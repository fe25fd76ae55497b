package ifwi_test

import (
	"errors"
	"github.com/davejbax/go-ifwi"
	"github.com/davejbax/go-ifwi/internal/builder"
	"github.com/davejbax/go-ifwi/internal/spec"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"testing"
)

// The fixture image is laid out as:
//
//	0x1000 BPDT             #0 UCOD, #1 IBBP, #2 S_BPDT, #3 OBBP, #4 (empty) NFTP
//	0x2000 S-BPDT in #2     #5 ISHC, #6 PMCP, #7 DLMP
//	0x8000 BPDT             #8 FTPR, #9 UTOK, #10 NVMC
const (
	testImageSize  = 0x10000
	testPrimaryA   = 0x1000
	testSecondaryA = 0x2000
	testPrimaryB   = 0x8000
)

var (
	testPrimaryAPartitions = []builder.Partition{
		{Type: spec.PartitionTypeUCOD, Start: 0x1200, Size: 0x100},
		{Type: spec.PartitionTypeIBBP, Start: 0x1300, Size: 0x80},
		{Type: spec.PartitionTypeSBPDT, Start: 0x2000, Size: 0x400},
		{Type: spec.PartitionTypeOBBP, Start: 0x2400, Size: 0x80},
		{Type: spec.PartitionTypeNFTP, Start: testPrimaryA, Size: 0},
	}
	testSecondaryAPartitions = []builder.Partition{
		{Type: spec.PartitionTypeISHC, Start: 0x2200, Size: 0x40},
		{Type: spec.PartitionTypePMCP, Start: 0x2240, Size: 0xC0},
		{Type: spec.PartitionTypeDLMP, Start: 0x2300, Size: 0x80},
	}
	testPrimaryBPartitions = []builder.Partition{
		{Type: spec.PartitionTypeFTPR, Start: 0x8200, Size: 0x100},
		{Type: spec.PartitionTypeUTOK, Start: 0x8300, Size: 0x80},
		{Type: spec.PartitionTypeNVMC, Start: 0x8400, Size: 0x100},
	}
)

// testPattern is the expected initial contents of the partition with the given global index
func testPattern(index int, size uint32) []byte {
	return builder.Pattern(byte(index*0x10), size)
}

func buildTestFlash(t *testing.T) []byte {
	primaryA := builder.NewPrimaryTable(testPrimaryA, testPrimaryAPartitions...)
	primaryA.Header.FITVersion = [4]uint16{16, 1, 25, 1048}
	primaryA.Header.Checksum = 0xC0DE

	secondaryA := builder.NewTable(testSecondaryA, testPrimaryA, testSecondaryAPartitions...)
	secondaryA.Header.FITVersion = [4]uint16{16, 1, 25, 1048}

	primaryB := builder.NewPrimaryTable(testPrimaryB, testPrimaryBPartitions...)
	primaryB.Header.Signature = 0x00AA55AA
	primaryB.Header.IFWIVersion = 0x12345678

	flash := builder.NewFlash(testImageSize)
	for _, table := range []*builder.Table{primaryA, secondaryA, primaryB} {
		require.NoError(t, flash.AddTable(table), "fixture tables should encode")
	}

	index := 0
	for _, partitions := range [][]builder.Partition{testPrimaryAPartitions, testSecondaryAPartitions, testPrimaryBPartitions} {
		for _, p := range partitions {
			if p.Size > 0 && p.Type != spec.PartitionTypeSBPDT {
				flash.AddPayload(p.Start, testPattern(index, p.Size))
			}

			index++
		}
	}

	data, err := flash.Bytes()
	require.NoError(t, err, "fixture image should build")
	return data
}

type testImage struct {
	*ifwi.Image

	fs       afero.Fs
	file     *countingFile
	hook     *test.Hook
	log      *logrus.Logger
	original []byte
}

// newTestStore writes data to an in-memory file
func newTestStore(t *testing.T, data []byte) (afero.Fs, *countingFile) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "spi.bin", data, 0o644))

	f, err := fs.OpenFile("spi.bin", os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	return fs, &countingFile{File: f}
}

func openTestImage(t *testing.T) *testImage {
	data := buildTestFlash(t)
	fs, file := newTestStore(t, data)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	img, err := ifwi.Open(file, ifwi.WithPrimaryOffsets(testPrimaryA, testPrimaryB), ifwi.WithLogger(logger))
	require.NoError(t, err, "Open should accept the fixture image")

	return &testImage{Image: img, fs: fs, file: file, hook: hook, log: logger, original: data}
}

// contents returns the current contents of the backing store
func (ti *testImage) contents(t *testing.T) []byte {
	data, err := afero.ReadFile(ti.fs, "spi.bin")
	require.NoError(t, err)
	return data
}

// reopen decodes the backing store from scratch, to check what was actually committed
func (ti *testImage) reopen(t *testing.T) *ifwi.Image {
	logger, _ := test.NewNullLogger()
	img, err := ifwi.Open(ti.file, ifwi.WithPrimaryOffsets(testPrimaryA, testPrimaryB), ifwi.WithLogger(logger))
	require.NoError(t, err, "committed image should still open")
	return img
}

// extents returns [start, size] for every descriptor in global order
func extents(img *ifwi.Image) [][2]uint32 {
	var result [][2]uint32
	for _, d := range img.Descriptors() {
		result = append(result, [2]uint32{d.Start, d.Size})
	}

	return result
}

func mustDescriptor(t *testing.T, img *ifwi.Image, index int) *ifwi.Descriptor {
	d, err := img.Descriptor(index)
	require.NoError(t, err, "fixture descriptor %d should exist", index)
	return d
}

// countingFile records writes so tests can check that nothing was touched, and the order things were written in
type countingFile struct {
	afero.File

	writes       int
	bytesWritten int
	offsets      []int64

	// failAt, if set, makes every write starting at that offset fail without touching the file
	failAt *int64
}

var _ io.WriterAt = &countingFile{}

var errInjectedWrite = errors.New("injected write failure")

func (c *countingFile) WriteAt(p []byte, off int64) (int, error) {
	c.offsets = append(c.offsets, off)
	if c.failAt != nil && *c.failAt == off {
		return 0, errInjectedWrite
	}

	c.writes++
	c.bytesWritten += len(p)
	return c.File.WriteAt(p, off)
}

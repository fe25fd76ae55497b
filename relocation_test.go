package ifwi_test

import (
	"github.com/davejbax/go-ifwi"
	"github.com/davejbax/go-ifwi/internal/spec"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestImage_Move_NoOp(t *testing.T) {
	img := openTestImage(t)
	ucod := mustDescriptor(t, img.Image, 0)
	before := extents(img.Image)

	err := img.Move(ucod, ifwi.MoveRequest{Start: ifwi.Uint32(ucod.Start), Size: ifwi.Uint32(ucod.Size)})
	require.NoError(t, err, "Move to the current extent should succeed")

	assert.Equal(t, before, extents(img.Image), "Move to the current extent should not change any descriptor")
	assert.Zero(t, img.file.writes, "Move to the current extent should not write anything")

	require.NoError(t, img.Move(ucod, ifwi.MoveRequest{}), "Move with no changes requested should succeed")
	assert.Zero(t, img.file.writes)
}

func TestImage_Move_WithinExtent(t *testing.T) {
	img := openTestImage(t)
	ucod := mustDescriptor(t, img.Image, 0)
	expected := extents(img.Image)
	expected[0] = [2]uint32{0x1200, 0x80}

	err := img.Move(ucod, ifwi.MoveRequest{Start: ifwi.Uint32(0x1200), Size: ifwi.Uint32(0x80)})
	require.NoError(t, err, "shrinking within the current extent should succeed")

	assert.Equal(t, expected, extents(img.Image), "only the target descriptor should change")
	assert.Equal(t, expected, extents(img.reopen(t)), "shrunk descriptor should be committed")
	assert.Equal(t, testPattern(0, 0x80), img.contents(t)[0x1200:0x1280], "retained bytes should be unchanged")
	assert.Equal(t, testPattern(1, 0x80), img.contents(t)[0x1300:0x1380], "neighbour's bytes should be unchanged")
}

func TestImage_Move_ZeroSize(t *testing.T) {
	img := openTestImage(t)
	before := extents(img.Image)

	err := img.Move(mustDescriptor(t, img.Image, 1), ifwi.MoveRequest{Start: ifwi.Uint32(0x4000), Size: ifwi.Uint32(0)})
	require.NoError(t, err, "emptying a partition should succeed")

	after := extents(img.reopen(t))
	assert.Equal(t, [2]uint32{0x4000, 0}, after[1])

	before[1] = after[1]
	assert.Equal(t, before, after, "emptying a partition should not move any other partition")
}

func TestImage_Move_Displacement(t *testing.T) {
	img := openTestImage(t)
	ucod := mustDescriptor(t, img.Image, 0)
	ibbp := mustDescriptor(t, img.Image, 1)

	// UCOD [0x1200, 0x1300) grows into IBBP [0x1300, 0x1380)
	require.NoError(t, img.Move(ucod, ifwi.MoveRequest{Size: ifwi.Uint32(0x120)}))

	assert.EqualValues(t, 0x1200, ucod.Start)
	assert.EqualValues(t, 0x120, ucod.Size)
	assert.EqualValues(t, 0x1320, ibbp.Start, "neighbour should be pushed to the new end")
	assert.EqualValues(t, 0x80, ibbp.Size, "pushed neighbour should keep its size")

	contents := img.contents(t)
	assert.Equal(t, testPattern(1, 0x80), contents[0x1320:0x13A0], "pushed neighbour's bytes should be at its new start")
	assert.Equal(t, testPattern(0, 0x100), contents[0x1200:0x1300], "moved partition's bytes should be kept")

	reopened := img.reopen(t)
	assert.Equal(t, extents(img.Image), extents(reopened), "new layout should be committed")

	// S_BPDT at 0x2000 was not in the way
	assert.EqualValues(t, 0x2000, mustDescriptor(t, reopened, 2).Start)
}

func TestImage_Move_InterruptedCopy(t *testing.T) {
	img := openTestImage(t)
	ucod := mustDescriptor(t, img.Image, 0)

	// The copy of IBBP to its new start is the first data write of the move
	failAt := int64(0x1320)
	img.file.failAt = &failAt

	err := img.Move(ucod, ifwi.MoveRequest{Size: ifwi.Uint32(0x120)})
	require.ErrorIs(t, err, errInjectedWrite, "Move should report the failed copy")

	expected := []int64{testPrimaryA, testSecondaryA, testPrimaryB, 0x1320}
	assert.Equal(t, expected, img.file.offsets, "directories should be committed before partition bytes are copied")

	reopened := img.reopen(t)
	assert.EqualValues(t, 0x1320, mustDescriptor(t, reopened, 1).Start, "committed tables should point at the new location")
	assert.EqualValues(t, 0x100, mustDescriptor(t, reopened, 0).Size, "outer move should not have been committed")
}

func TestImage_Move_Cascade(t *testing.T) {
	img := openTestImage(t)
	ibbp := mustDescriptor(t, img.Image, 1)

	// IBBP moved to [0x1F00, 0x2100) runs into the S-BPDT partition, which in turn runs into OBBP
	require.NoError(t, img.Move(ibbp, ifwi.MoveRequest{Start: ifwi.Uint32(0x1F00), End: ifwi.Uint32(0x2100)}))

	sbpdt := mustDescriptor(t, img.Image, 2)
	obbp := mustDescriptor(t, img.Image, 3)
	assert.EqualValues(t, 0x1F00, ibbp.Start)
	assert.EqualValues(t, 0x200, ibbp.Size)
	assert.EqualValues(t, 0x2100, sbpdt.Start, "S-BPDT partition should be pushed to the new end")
	assert.EqualValues(t, 0x400, sbpdt.Size)
	assert.EqualValues(t, 0x2500, obbp.Start, "partition after the S-BPDT should be pushed after it")

	// Children moved along with the S-BPDT partition
	assert.EqualValues(t, 0x2300, mustDescriptor(t, img.Image, 5).Start)
	assert.EqualValues(t, 0x2340, mustDescriptor(t, img.Image, 6).Start)
	assert.EqualValues(t, 0x2400, mustDescriptor(t, img.Image, 7).Start)

	reopened := img.reopen(t)
	assert.Equal(t, extents(img.Image), extents(reopened), "new layout should be committed, including the moved S-BPDT")
	assert.EqualValues(t, 0x2100, reopened.Directories()[1].Offset())

	contents := img.contents(t)
	assert.Equal(t, testPattern(1, 0x80), contents[0x1F00:0x1F80])
	assert.Equal(t, testPattern(3, 0x80), contents[0x2500:0x2580])
	assert.Equal(t, testPattern(5, 0x40), contents[0x2300:0x2340])
	assert.Equal(t, testPattern(7, 0x80), contents[0x2400:0x2480])
}

func TestImage_Move_SBPDTWithChildren(t *testing.T) {
	img := openTestImage(t)
	sbpdt := mustDescriptor(t, img.Image, 2)

	require.NoError(t, img.Move(sbpdt, ifwi.MoveRequest{Start: ifwi.Uint32(0x3000)}))

	assert.Equal(t, []int64{testPrimaryA, 0x3000, testPrimaryB, 0x3000, testPrimaryA, 0x3000, testPrimaryB}, img.file.offsets,
		"directories should be committed before and again after the S-BPDT copy")

	assert.EqualValues(t, 0x3000, sbpdt.Start)
	assert.EqualValues(t, 0x2400, mustDescriptor(t, img.Image, 3).Start, "OBBP is not in the way and should not move")
	assert.EqualValues(t, 0x3200, mustDescriptor(t, img.Image, 5).Start)
	assert.EqualValues(t, 0x3240, mustDescriptor(t, img.Image, 6).Start)
	assert.EqualValues(t, 0x3300, mustDescriptor(t, img.Image, 7).Start)

	reopened := img.reopen(t)
	require.Len(t, reopened.Directories(), 3)
	assert.EqualValues(t, 0x3000, reopened.Directories()[1].Offset(), "S-BPDT table should follow its partition")
	assert.Equal(t, extents(img.Image), extents(reopened))

	contents := img.contents(t)
	assert.Equal(t, testPattern(5, 0x40), contents[0x3200:0x3240], "nested partition bytes should move with the S-BPDT")
	assert.Equal(t, testPattern(6, 0xC0), contents[0x3240:0x3300])
	assert.Equal(t, testPattern(7, 0x80), contents[0x3300:0x3380])
}

func TestImage_Move_GrowContainingSBPDT(t *testing.T) {
	img := openTestImage(t)
	sbpdt := mustDescriptor(t, img.Image, 2)
	dlmp := mustDescriptor(t, img.Image, 7)

	// DLMP [0x2300, 0x2380) grows past the end of the S-BPDT partition [0x2000, 0x2400)
	require.NoError(t, img.Move(dlmp, ifwi.MoveRequest{Size: ifwi.Uint32(0x180)}))

	assert.EqualValues(t, 0x2000, sbpdt.Start, "containing S-BPDT should keep its start")
	assert.EqualValues(t, 0x2480, sbpdt.End(), "containing S-BPDT should grow to the new end")
	assert.EqualValues(t, 0x2480, mustDescriptor(t, img.Image, 3).Start, "partition after the S-BPDT should be pushed")
	assert.EqualValues(t, 0x2300, dlmp.Start)
	assert.EqualValues(t, 0x2480, dlmp.End())

	// Untouched children
	assert.EqualValues(t, 0x2200, mustDescriptor(t, img.Image, 5).Start)
	assert.EqualValues(t, 0x2240, mustDescriptor(t, img.Image, 6).Start)

	reopened := img.reopen(t)
	assert.Equal(t, extents(img.Image), extents(reopened), "secondary table should hold the grown partition, not a stale copy")

	contents := img.contents(t)
	assert.Equal(t, testPattern(3, 0x80), contents[0x2480:0x2500])
	assert.Equal(t, testPattern(7, 0x80), contents[0x2300:0x2380])
}

func TestImage_Move_LogsNesting(t *testing.T) {
	img := openTestImage(t)
	img.hook.Reset()

	require.NoError(t, img.Move(mustDescriptor(t, img.Image, 7), ifwi.MoveRequest{Size: ifwi.Uint32(0x180)}))

	var depths []int
	for _, entry := range img.hook.AllEntries() {
		if entry.Level == logrus.InfoLevel {
			depths = append(depths, entry.Data["depth"].(int))
		}
	}

	// DLMP, then S_BPDT (growing), then OBBP (pushed by S_BPDT)
	assert.Equal(t, []int{0, 1, 2}, depths)
	assert.Equal(t, "DLMP", img.hook.AllEntries()[0].Data["type"])
}

func TestImage_Move_Unsupported(t *testing.T) {
	cases := []struct {
		name  string
		index int
		req   ifwi.MoveRequest
	}{
		{"backwards", 0, ifwi.MoveRequest{Start: ifwi.Uint32(0x1200 - 0x10)}},
		{"shrink S-BPDT", 2, ifwi.MoveRequest{Size: ifwi.Uint32(0x200)}},
		{"shrink S-BPDT by end", 2, ifwi.MoveRequest{End: ifwi.Uint32(0x2300)}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			img := openTestImage(t)
			before := extents(img.Image)

			err := img.Move(mustDescriptor(t, img.Image, c.index), c.req)
			assert.ErrorIs(t, err, ifwi.ErrUnsupported)
			assert.Equal(t, before, extents(img.Image), "rejected move should not change any descriptor")
			assert.Zero(t, img.file.writes, "rejected move should not write anything")
		})
	}
}

func TestImage_Move_InvalidRequest(t *testing.T) {
	cases := []struct {
		name string
		req  ifwi.MoveRequest
	}{
		{"size and end", ifwi.MoveRequest{Size: ifwi.Uint32(0x10), End: ifwi.Uint32(0x1300)}},
		{"end before start", ifwi.MoveRequest{Start: ifwi.Uint32(0x1300), End: ifwi.Uint32(0x1200)}},
		{"overflow", ifwi.MoveRequest{Size: ifwi.Uint32(0xFFFFFFFF)}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			img := openTestImage(t)
			before := extents(img.Image)

			err := img.Move(mustDescriptor(t, img.Image, 0), c.req)
			assert.ErrorIs(t, err, ifwi.ErrInvalidRequest)
			assert.Equal(t, before, extents(img.Image))
			assert.Zero(t, img.file.writes)
		})
	}
}

func TestImage_Move_UnknownDescriptor(t *testing.T) {
	img := openTestImage(t)
	copied := *mustDescriptor(t, img.Image, 0)

	err := img.Move(&copied, ifwi.MoveRequest{Size: ifwi.Uint32(0x10)})
	assert.ErrorIs(t, err, ifwi.ErrUnknownDescriptor, "Move should only accept descriptors owned by the image")
}

func TestImage_Move_IgnoresEmptyPartitions(t *testing.T) {
	img := openTestImage(t)
	nftp := mustDescriptor(t, img.Image, 4)
	require.Equal(t, spec.PartitionTypeNFTP, nftp.Type)

	// The empty NFTP slot sits at the primary's base, inside the grown extent but must stay put
	require.NoError(t, img.Move(mustDescriptor(t, img.Image, 0), ifwi.MoveRequest{Size: ifwi.Uint32(0x120)}))
	assert.EqualValues(t, testPrimaryA, nftp.Start)
	assert.Zero(t, nftp.Size)
}

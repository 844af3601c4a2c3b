package multicast

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/media"
)

func testHeader() Header {
	return Header{
		Serial:    "SIM000001",
		Model:     "SIM-CAM",
		Seq:       1,
		FrameID:   42,
		Timestamp: time.Unix(1560000000, 123000000),
		Width:     40,
		Height:    25,
		Format:    media.Mono8,
		Chunks:    map[string]float64{"ChunkExposureTime": 12500.5, "ChunkGain": 3},
	}
}

func testData(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(1)).Read(data)
	return data
}

func TestEncodeDecode(t *testing.T) {
	data := testData(1000)
	datagrams, err := Encode(testHeader(), data, 300)
	require.NoError(t, err)
	require.Len(t, datagrams, 4)

	h, payload, err := Decode(datagrams[0])
	require.NoError(t, err)
	assert.Equal(t, "SIM000001", h.Serial)
	assert.Equal(t, "SIM-CAM", h.Model)
	assert.Equal(t, uint64(42), h.FrameID)
	assert.Equal(t, 40, h.Width)
	assert.Equal(t, media.Mono8, h.Format)
	assert.Equal(t, uint16(4), h.Count)
	assert.Equal(t, uint32(1000), h.Total)
	assert.Equal(t, 12500.5, h.Chunks["ChunkExposureTime"])
	assert.True(t, h.Timestamp.Equal(testHeader().Timestamp))
	assert.Equal(t, data[:300], payload)

	h, payload, err = Decode(datagrams[3])
	require.NoError(t, err)
	assert.Equal(t, uint16(3), h.Index)
	assert.Equal(t, uint32(900), h.Offset)
	assert.Nil(t, h.Chunks)
	assert.Equal(t, data[900:], payload)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("hello"))
	assert.Equal(t, ErrBadMagic, err)

	datagrams, err := Encode(testHeader(), testData(10), 0)
	require.NoError(t, err)
	_, _, err = Decode(datagrams[0][:20])
	assert.Error(t, err)
}

func TestDecodeRejectsHostileSizes(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(h *Header)
		data   int
	}{
		"huge geometry": {func(h *Header) { h.Width, h.Height = 1<<31, 1<<31 }, 1},
		"zero width":    {func(h *Header) { h.Width = 0 }, 1},
		"size mismatch": {func(h *Header) {}, 10},
		"unknown format, huge total": {func(h *Header) {
			h.Format = "Coord3D_ABC32f"
			h.Chunks = nil
		}, 1},
	} {
		h := testHeader()
		tc.mutate(&h)
		datagrams, err := Encode(h, testData(tc.data), 0)
		require.NoError(t, err, name)
		d := datagrams[0]
		if h.Format == "Coord3D_ABC32f" {
			// Claim 4 GiB in one datagram.
			d = rewriteTotal(t, d, 0xFFFFFFF0)
		}
		_, _, err = Decode(d)
		assert.Equal(t, ErrMalformed, errors.Cause(err), name)
	}
}

// rewriteTotal patches the Total field of an encoded single-datagram frame.
func rewriteTotal(t *testing.T, d []byte, total uint32) []byte {
	h, payload, err := Decode(d)
	require.NoError(t, err)
	off := len(d) - len(payload) - 1 - 4 - 4 // chunk count, Offset, Total
	if len(h.Chunks) > 0 {
		t.Fatal("rewriteTotal needs a frame without chunks")
	}
	out := append([]byte(nil), d...)
	binary.BigEndian.PutUint32(out[off:], total)
	return out
}

func TestAssembleAfterSenderRestart(t *testing.T) {
	h := testHeader()
	h.Epoch = 1
	h.Seq = 500
	data := testData(1000)

	var asm Assembler
	add := func(h Header) *Frame {
		datagrams, err := Encode(h, data, 600)
		require.NoError(t, err)
		var f *Frame
		for _, d := range datagrams {
			dh, p, err := Decode(d)
			require.NoError(t, err)
			if got := asm.Add(dh, p); got != nil {
				f = got
			}
		}
		return f
	}
	require.NotNil(t, add(h))

	h.Epoch = 2
	for seq := uint64(1); seq <= 3; seq++ {
		h.Seq = seq
		f := add(h)
		require.NotNil(t, f, "seq %d after restart", seq)
		assert.Equal(t, seq, f.Seq)
	}
	assert.Equal(t, uint64(0), asm.Lost)
}

func TestAssembleOutOfOrder(t *testing.T) {
	data := testData(1000)
	datagrams, err := Encode(testHeader(), data, 128)
	require.NoError(t, err)

	var asm Assembler
	var done *Frame
	perm := rand.New(rand.NewSource(2)).Perm(len(datagrams))
	for i, j := range perm {
		h, payload, err := Decode(datagrams[j])
		require.NoError(t, err)
		f := asm.Add(h, payload)
		if i < len(perm)-1 {
			assert.Nil(t, f)
		} else {
			done = f
		}
	}
	require.NotNil(t, done)
	assert.Equal(t, data, done.Data)
	assert.Equal(t, 3.0, done.Chunks["ChunkGain"])

	// A late duplicate does not produce a second frame.
	h, payload, _ := Decode(datagrams[0])
	assert.Nil(t, asm.Add(h, payload))
}

func TestAssembleCountsLostFrames(t *testing.T) {
	h1 := testHeader()
	h1.Width = 20
	first, err := Encode(h1, testData(500), 100)
	require.NoError(t, err)
	h2 := h1
	h2.Seq = 2
	second, err := Encode(h2, testData(500), 100)
	require.NoError(t, err)

	var asm Assembler
	// Only part of frame 1 arrives.
	for _, d := range first[:2] {
		h, p, _ := Decode(d)
		asm.Add(h, p)
	}
	var f *Frame
	for _, d := range second {
		h, p, _ := Decode(d)
		if got := asm.Add(h, p); got != nil {
			f = got
		}
	}
	require.NotNil(t, f)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint64(1), asm.Lost)

	// Stragglers of frame 1 are ignored.
	h, p, _ := Decode(first[4])
	assert.Nil(t, asm.Add(h, p))
}

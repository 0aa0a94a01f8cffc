package steg

import (
	"bytes"
	"errors"
	"image/jpeg"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codecFor(t *testing.T, jpg []byte) (*EntropyCodec, []byte) {
	t.Helper()
	h, err := ParseHeader(bytes.NewReader(jpg))
	require.NoError(t, err)
	return NewEntropyCodec(h.Layout, h.Tables), jpg[h.ScanOffset:]
}

// randomMessage returns n random bytes, none of them zero
func randomMessage(rng *rand.Rand, n int) []byte {
	msg := make([]byte, n)
	for i := range msg {
		msg[i] = byte(rng.Intn(255) + 1)
	}
	return msg
}

func TestSingleMCURoundTrip(t *testing.T) {
	jpg := buildTestJPEG(t, singleMCU(repeated(2, 8), repeated(2, 8)))
	codec, scan := codecFor(t, jpg)

	eligible, err := codec.EligibleCount(scan)
	require.NoError(t, err)
	assert.Equal(t, 16, eligible)

	capacity, err := codec.MeasureCapacity(scan)
	require.NoError(t, err)
	assert.Equal(t, 1, capacity)

	out, err := codec.Embed(scan, []byte("A"))
	require.NoError(t, err)
	msg, err := codec.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), msg)

	_, err = codec.Embed(scan, []byte("AB"))
	assert.True(t, errors.Is(err, ErrCapacity), "got %v", err)
}

func TestTooFewCoefficients(t *testing.T) {
	jpg := buildTestJPEG(t, singleMCU(repeated(2, 5), repeated(-3, 5)))
	codec, scan := codecFor(t, jpg)

	eligible, err := codec.EligibleCount(scan)
	require.NoError(t, err)
	assert.Equal(t, 10, eligible)

	capacity, err := codec.MeasureCapacity(scan)
	require.NoError(t, err)
	assert.Equal(t, 0, capacity)

	_, err = codec.Embed(scan, []byte("x"))
	assert.True(t, errors.Is(err, ErrCapacity))

	// The terminator alone still fits
	out, err := codec.Embed(scan, nil)
	require.NoError(t, err)
	msg, err := codec.Extract(out)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestCapacityClampsToZero(t *testing.T) {
	jpg := buildTestJPEG(t, singleMCU([]int{2, 2, 2}, nil))
	codec, scan := codecFor(t, jpg)

	capacity, err := codec.MeasureCapacity(scan)
	require.NoError(t, err)
	assert.Equal(t, 0, capacity)
}

func TestEmbedRejectsZeroByte(t *testing.T) {
	jpg := buildTestJPEG(t, singleMCU(repeated(2, 40), repeated(2, 40)))
	codec, scan := codecFor(t, jpg)

	_, err := codec.Embed(scan, []byte{'a', 0x00, 'b'})
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestEmbedAcrossRestartMarkers(t *testing.T) {
	img := testImage{width: 16, height: 8, restartInterval: 1}
	for i := 0; i < 2; i++ {
		img.mcus = append(img.mcus, testMCU{
			luma: []testBlock{{dc: 2, ac: []int{1, 0, 3}}},
			cb:   testBlock{dc: -1, ac: repeated(2, 12)},
			cr:   testBlock{ac: repeated(-2, 12)},
		})
	}
	jpg := buildTestJPEG(t, img)
	codec, scan := codecFor(t, jpg)

	capacity, err := codec.MeasureCapacity(scan)
	require.NoError(t, err)
	assert.Equal(t, 48/8-1, capacity)

	out, err := codec.Embed(scan, []byte("hello"))
	require.NoError(t, err)
	msg, err := codec.Extract(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg)

	after, err := codec.MeasureCapacity(out)
	require.NoError(t, err)
	assert.Equal(t, capacity, after)
}

func TestEmbedMissingRestartMarker(t *testing.T) {
	img := testImage{width: 16, height: 8, restartInterval: 1, omitRestarts: true}
	for i := 0; i < 2; i++ {
		img.mcus = append(img.mcus, testMCU{
			luma: []testBlock{{}},
			cb:   testBlock{ac: repeated(2, 12)},
			cr:   testBlock{ac: repeated(2, 12)},
		})
	}
	jpg := buildTestJPEG(t, img)
	codec, scan := codecFor(t, jpg)

	_, err := codec.MeasureCapacity(scan)
	assert.True(t, errors.Is(err, ErrCorruption))
	_, err = codec.Embed(scan, []byte("hi"))
	assert.True(t, errors.Is(err, ErrCorruption))
}

func TestEncoderOutputRoundTrip(t *testing.T) {
	jpg := noisyJPEG(t, 128, 128, 7)
	codec, scan := codecFor(t, jpg)
	original := bytes.Clone(scan)

	capacity, err := codec.MeasureCapacity(scan)
	require.NoError(t, err)
	require.Greater(t, capacity, 64)
	assert.Equal(t, original, scan, "measuring must not touch the scan")

	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{0, 1, 17, capacity / 2, capacity} {
		msg := randomMessage(rng, n)
		out, err := codec.Embed(scan, msg)
		require.NoError(t, err, "length %d", n)
		assert.Equal(t, original, scan, "embed works on a copy")

		got, err := codec.Extract(out)
		require.NoError(t, err)
		assert.Equal(t, msg, got, "length %d", n)

		assert.Equal(t, len(unstuff(scan)), len(unstuff(out)), "unstuffed length is preserved")

		after, err := codec.MeasureCapacity(out)
		require.NoError(t, err)
		assert.Equal(t, capacity, after)
	}

	_, err = codec.Embed(scan, randomMessage(rng, capacity+1))
	assert.True(t, errors.Is(err, ErrCapacity))
}

func TestHiddenImageStillDecodes(t *testing.T) {
	jpg := noisyJPEG(t, 64, 48, 3)
	capacity, err := Capacity(jpg)
	require.NoError(t, err)

	msg := randomMessage(rand.New(rand.NewSource(9)), capacity)
	out, err := Hide(jpg, msg)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	got, err := Reveal(out)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestExtractWithoutMessage(t *testing.T) {
	// A clean image yields whatever its LSBs spell up to the first zero byte
	jpg := noisyJPEG(t, 32, 32, 5)
	codec, scan := codecFor(t, jpg)

	got, err := codec.Extract(scan)
	require.NoError(t, err)
	assert.NotContains(t, got, byte(0x00))
}

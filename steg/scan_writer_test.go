package steg

import (
	"encoding/binary"
	"math/bits"
	"testing"
)

// scanWriter writes entropy-coded bits MSB first with JPEG-style FF escaping
type scanWriter struct {
	dataBuffer []byte
	fill       byte
	numBits    uint8
}

// Write writes the low numBits of val
func (w *scanWriter) Write(val uint32, numBits uint32) {
	for i := int(numBits) - 1; i >= 0; i-- {
		w.fill = w.fill<<1 | byte(val>>uint(i))&1
		w.numBits++
		if w.numBits == 8 {
			w.flushByte()
		}
	}
}

func (w *scanWriter) flushByte() {
	w.dataBuffer = append(w.dataBuffer, w.fill)
	if w.fill == 0xFF {
		w.dataBuffer = append(w.dataBuffer, 0x00) // Escape FF
	}
	w.fill = 0
	w.numBits = 0
}

// Pad fills the rest of the current byte with one bits
func (w *scanWriter) Pad() {
	for w.numBits != 0 {
		w.Write(1, 1)
	}
}

// WriteMarker pads and then writes an unescaped marker
func (w *scanWriter) WriteMarker(marker byte) {
	w.Pad()
	w.dataBuffer = append(w.dataBuffer, 0xFF, marker)
}

func (w *scanWriter) Bytes() []byte {
	return w.dataBuffer
}

type huffCode struct {
	code   uint32
	length uint32
}

// canonicalCodes assigns codes the way a DHT segment defines them
func canonicalCodes(counts [maxCodeLength]uint8, symbols []uint8) map[uint8]huffCode {
	codes := make(map[uint8]huffCode, len(symbols))
	code := uint32(0)
	next := 0
	for length := 1; length <= maxCodeLength; length++ {
		for i := 0; i < int(counts[length-1]); i++ {
			codes[symbols[next]] = huffCode{code: code, length: uint32(length)}
			code++
			next++
		}
		code <<= 1
	}
	return codes
}

// Small tables shared by every component of the hand-built scans
var (
	testDCCounts  = [maxCodeLength]uint8{0, 3, 2}
	testDCSymbols = []uint8{0, 1, 2, 3, 4}
	testACCounts  = [maxCodeLength]uint8{0, 2, 2, 3, 1}
	testACSymbols = []uint8{0x00, 0x01, 0x02, 0x03, 0x11, 0xF0, 0x12, 0x21}
)

// magnitude returns the size category and the magnitude bits of v
func magnitude(v int) (uint32, uint32) {
	if v == 0 {
		return 0, 0
	}
	a := v
	if a < 0 {
		a = -a
	}
	size := uint32(bits.Len(uint(a)))
	if v < 0 {
		return size, uint32(v + (1 << size) - 1)
	}
	return size, uint32(v)
}

// testBlock is one 8x8 block: the DC difference and up to 63 AC values
type testBlock struct {
	dc int
	ac []int
}

type testMCU struct {
	luma []testBlock
	cb   testBlock
	cr   testBlock
}

type blockEncoder struct {
	t  *testing.T
	w  *scanWriter
	dc map[uint8]huffCode
	ac map[uint8]huffCode
}

func (e *blockEncoder) symbol(table map[uint8]huffCode, s uint8) {
	c, ok := table[s]
	if !ok {
		e.t.Fatalf("symbol %02X missing from test table", s)
	}
	e.w.Write(c.code, c.length)
}

func (e *blockEncoder) encode(b testBlock) {
	if len(b.ac) > 63 {
		e.t.Fatalf("block has %d AC values", len(b.ac))
	}
	size, mag := magnitude(b.dc)
	e.symbol(e.dc, uint8(size))
	e.w.Write(mag, size)

	last := len(b.ac) - 1
	for last >= 0 && b.ac[last] == 0 {
		last--
	}
	run := 0
	for i := 0; i <= last; i++ {
		if b.ac[i] == 0 {
			run++
			continue
		}
		for run >= 16 {
			e.symbol(e.ac, symbolZRL)
			run -= 16
		}
		size, mag := magnitude(b.ac[i])
		e.symbol(e.ac, uint8(run<<4)|uint8(size))
		e.w.Write(mag, size)
		run = 0
	}
	if last < 62 {
		e.symbol(e.ac, symbolEOB)
	}
}

type testImage struct {
	width, height   uint16
	lumaSampling    byte
	restartInterval uint16
	omitRestarts    bool
	mcus            []testMCU
}

// encodeScan returns the entropy-coded segment through EOI
func encodeScan(t *testing.T, img testImage) []byte {
	t.Helper()
	w := &scanWriter{}
	enc := &blockEncoder{
		t:  t,
		w:  w,
		dc: canonicalCodes(testDCCounts, testDCSymbols),
		ac: canonicalCodes(testACCounts, testACSymbols),
	}
	ri := int(img.restartInterval)
	for k, mcu := range img.mcus {
		if k > 0 && ri != 0 && k%ri == 0 {
			if img.omitRestarts {
				w.Pad()
			} else {
				w.WriteMarker(MarkerRST0 + byte((k/ri-1)%8))
			}
		}
		for _, b := range mcu.luma {
			enc.encode(b)
		}
		enc.encode(mcu.cb)
		enc.encode(mcu.cr)
	}
	w.WriteMarker(MarkerEOI)
	return w.Bytes()
}

func appendSegment(out []byte, marker byte, body []byte) []byte {
	out = append(out, 0xFF, marker)
	out = binary.BigEndian.AppendUint16(out, uint16(len(body)+2))
	return append(out, body...)
}

func dhtTable(class, id uint8, counts [maxCodeLength]uint8, symbols []uint8) []byte {
	out := []byte{class<<4 | id}
	out = append(out, counts[:]...)
	return append(out, symbols...)
}

// buildHeader returns everything from SOI through the SOS segment
func buildHeader(img testImage) []byte {
	out := []byte{0xFF, MarkerSOI}

	sampling := img.lumaSampling
	if sampling == 0 {
		sampling = 0x11
	}
	sof := []byte{8}
	sof = binary.BigEndian.AppendUint16(sof, img.height)
	sof = binary.BigEndian.AppendUint16(sof, img.width)
	sof = append(sof, 3, 1, sampling, 0, 2, 0x11, 1, 3, 0x11, 1)
	out = appendSegment(out, MarkerSOF0, sof)

	if img.restartInterval != 0 {
		out = appendSegment(out, MarkerDRI, binary.BigEndian.AppendUint16(nil, img.restartInterval))
	}

	dht := dhtTable(0, 0, testDCCounts, testDCSymbols)
	dht = append(dht, dhtTable(1, 0, testACCounts, testACSymbols)...)
	out = appendSegment(out, MarkerDHT, dht)

	return appendSegment(out, MarkerSOS, []byte{3, 1, 0x00, 2, 0x00, 3, 0x00, 0, 63, 0})
}

// buildTestJPEG assembles a complete baseline file around a hand-built scan
func buildTestJPEG(t *testing.T, img testImage) []byte {
	t.Helper()
	return append(buildHeader(img), encodeScan(t, img)...)
}

// repeated returns n copies of v
func repeated(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// singleMCU is an 8x8 image whose chroma blocks hold the given AC values
func singleMCU(cb, cr []int) testImage {
	return testImage{
		width:  8,
		height: 8,
		mcus: []testMCU{{
			luma: []testBlock{{}},
			cb:   testBlock{ac: cb},
			cr:   testBlock{ac: cr},
		}},
	}
}

// unstuff drops the 0x00 following every literal 0xFF
func unstuff(scan []byte) []byte {
	out := make([]byte, 0, len(scan))
	for i := 0; i < len(scan); i++ {
		out = append(out, scan[i])
		if scan[i] == 0xFF && i+1 < len(scan) && scan[i+1] == 0x00 {
			i++
		}
	}
	return out
}

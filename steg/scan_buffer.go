package steg

import "slices"

// scanBuffer is the in-memory entropy-coded segment, from the first byte
// after SOS through the EOI marker. Stuffing bytes are inserted and removed
// in place; both operations shift the tail and are O(n).
type scanBuffer struct {
	data []byte
}

func newScanBuffer(data []byte) *scanBuffer {
	return &scanBuffer{data: data}
}

func (b *scanBuffer) Len() int {
	return len(b.data)
}

func (b *scanBuffer) at(pos int) byte {
	return b.data[pos]
}

func (b *scanBuffer) set(pos int, v byte) {
	b.data[pos] = v
}

// insertAt grows the buffer by one byte, placing v at pos
func (b *scanBuffer) insertAt(pos int, v byte) {
	b.data = slices.Insert(b.data, pos, v)
}

// removeAt shrinks the buffer by one byte, dropping the byte at pos
func (b *scanBuffer) removeAt(pos int) {
	b.data = slices.Delete(b.data, pos, pos+1)
}

// isMarker reports whether pos starts a real marker rather than a stuffed 0xFF
func (b *scanBuffer) isMarker(pos int) bool {
	return pos+1 < len(b.data) && b.data[pos] == 0xFF && b.data[pos+1] != 0x00
}

// endsWithEOI reports whether the last two bytes are the End Of Image marker
func (b *scanBuffer) endsWithEOI() bool {
	n := len(b.data)
	return n >= 2 && b.data[n-2] == EOI[0] && b.data[n-1] == EOI[1]
}

func (b *scanBuffer) Bytes() []byte {
	return b.data
}

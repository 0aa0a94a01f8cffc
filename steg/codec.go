package steg

import (
	"bytes"
	"errors"
)

// EntropyCodec hides and recovers messages in the entropy-coded segment of
// one image. Scans are passed as the bytes from just after SOS through EOI.
type EntropyCodec struct {
	layout *ImageLayout
	tables *HuffmanTableSet
}

// NewEntropyCodec creates a codec for scans described by layout and tables
func NewEntropyCodec(layout *ImageLayout, tables *HuffmanTableSet) *EntropyCodec {
	return &EntropyCodec{layout: layout, tables: tables}
}

// EligibleCount returns the number of coefficients able to carry one bit
func (e *EntropyCodec) EligibleCount(scan []byte) (int, error) {
	c, err := newScanCursor(newScanBuffer(scan), e.layout, e.tables)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		if _, err := c.processBit(modeRead, 0); err != nil {
			if errors.Is(err, errEndOfScan) {
				return n, nil
			}
			return 0, err
		}
		n++
	}
}

// MeasureCapacity returns the longest message, in bytes, that Embed will
// accept for scan. One byte is reserved for the terminator. The scan is not
// modified.
func (e *EntropyCodec) MeasureCapacity(scan []byte) (int, error) {
	bits, err := e.EligibleCount(scan)
	if err != nil {
		return 0, err
	}
	capacity := bits/8 - 1
	if capacity < 0 {
		capacity = 0
	}
	log.Debugf("%d eligible coefficients, capacity %d bytes", bits, capacity)
	return capacity, nil
}

// Embed writes message followed by a zero byte into scan, MSB first, and
// returns the rewritten scan. The input slice is left untouched; the result
// may differ in length by the stuffing bytes gained or lost.
func (e *EntropyCodec) Embed(scan, message []byte) ([]byte, error) {
	if i := bytes.IndexByte(message, 0x00); i >= 0 {
		return nil, errorf(ExitCodeInvalidMessage, "message contains a zero byte at offset %d", i)
	}

	c, err := newScanCursor(newScanBuffer(bytes.Clone(scan)), e.layout, e.tables)
	if err != nil {
		return nil, err
	}

	payload := append(bytes.Clone(message), 0x00)
	for i, b := range payload {
		for shift := 7; shift >= 0; shift-- {
			if _, err := c.processBit(modeWrite, (b>>shift)&1); err != nil {
				if errors.Is(err, errEndOfScan) {
					return nil, errorf(ExitCodeCapacityError,
						"image too small: ran out of coefficients after %d of %d bytes", i, len(payload))
				}
				return nil, err
			}
		}
	}

	log.Debugf("embedded %d bytes, %d stuffing bytes inserted, %d removed",
		len(message), c.inserted, c.removed)
	return c.Bytes(), nil
}

// Extract reads bytes from scan until a zero byte or the end of the scan.
// A trailing partial byte is discarded.
func (e *EntropyCodec) Extract(scan []byte) ([]byte, error) {
	c, err := newScanCursor(newScanBuffer(scan), e.layout, e.tables)
	if err != nil {
		return nil, err
	}

	var out []byte
	for {
		var b byte
		for i := 0; i < 8; i++ {
			bit, err := c.processBit(modeRead, 0)
			if err != nil {
				if errors.Is(err, errEndOfScan) {
					log.Debugf("scan ended before a terminator, %d bytes recovered", len(out))
					return out, nil
				}
				return nil, err
			}
			b = b<<1 | bit
		}
		if b == 0x00 {
			return out, nil
		}
		out = append(out, b)
	}
}

package steg

import (
	"errors"
	"fmt"
)

// errEndOfScan signals that the walk reached the End Of Image marker or the
// last MCU. It never leaves the package; callers see a count, a short
// message or a CapacityError instead.
var errEndOfScan = errors.New("end of scan")

type coefficientKind uint8

const (
	coefficientNone coefficientKind = iota
	coefficientDC
	coefficientAC
	coefficientEOB
	coefficientZRL
)

// CoefficientRef describes the most recently decoded coefficient
type CoefficientRef struct {
	// BytePos and BitPos locate the final magnitude bit (BitPos 0 is the MSB)
	BytePos int
	BitPos  uint8

	// Length is the number of magnitude bits, 0 for EOB and ZRL
	Length uint8

	// Index is the running coefficient index in the block: 0 is DC, 1..63
	// are AC, 64 once the block is exhausted
	Index uint8

	kind coefficientKind
}

// IsEOB reports whether the coefficient is an End-Of-Block symbol
func (r CoefficientRef) IsEOB() bool { return r.kind == coefficientEOB }

// IsZRL reports whether the coefficient is a run of 16 zeros
func (r CoefficientRef) IsZRL() bool { return r.kind == coefficientZRL }

// isEligible reports whether a coefficient may carry a payload bit. Only AC
// values with at least two magnitude bits qualify: flipping the last bit of
// those keeps both the size category and the sign.
func isEligible(r CoefficientRef) bool {
	return r.kind == coefficientAC && r.Length > 1
}

type cursorState int

const (
	stateAtDcOfLuma cursorState = iota
	stateAtAcOfLuma
	stateAtDcOfChroma
	stateAtAcOfChroma
	stateAtRestartBoundary
	stateDone
)

func (s cursorState) String() string {
	switch s {
	case stateAtDcOfLuma:
		return "AtDcOfLuma"
	case stateAtAcOfLuma:
		return "AtAcOfLuma"
	case stateAtDcOfChroma:
		return "AtDcOfChroma"
	case stateAtAcOfChroma:
		return "AtAcOfChroma"
	case stateAtRestartBoundary:
		return "AtRestartBoundary"
	case stateDone:
		return "Done"
	default:
		return fmt.Sprintf("cursorState(%d)", int(s))
	}
}

type bitMode int

const (
	modeRead bitMode = iota
	modeWrite
)

// ScanCursor walks the entropy-coded segment one coefficient at a time and
// only ever stops on chrominance AC coefficients. Between calls to
// processBit it rests on the next undecoded coefficient.
type ScanCursor struct {
	buf    *scanBuffer
	layout *ImageLayout
	tables *HuffmanTableSet

	bytePos int
	bitPos  uint8

	// mcusRead is the number of MCUs whose decoding has started
	mcusRead            uint32
	onSecondChrominance bool
	current             CoefficientRef
	state               cursorState

	// stuffing bytes added and removed by writes, for logging
	inserted int
	removed  int
}

// newScanCursor creates a cursor over buf and decodes MCU 0 up to the first
// AC coefficient of its Cb block.
func newScanCursor(buf *scanBuffer, layout *ImageLayout, tables *HuffmanTableSet) (*ScanCursor, error) {
	if !buf.endsWithEOI() {
		return nil, NewStegError(ExitCodeCorruptionError, "scan data does not end with EOI")
	}
	if !tables.isBound() {
		return nil, NewStegError(ExitCodeFormatError, "huffman tables are not bound to the scan components")
	}

	c := &ScanCursor{
		buf:    buf,
		layout: layout,
		tables: tables,
	}
	if err := c.loadNextMCU(); err != nil {
		if errors.Is(err, errEndOfScan) {
			return nil, NewStegError(ExitCodeCorruptionError, "scan ends inside the first MCU")
		}
		return nil, err
	}
	return c, nil
}

// checkReadable fails unless the cursor sits on a data bit
func (c *ScanCursor) checkReadable() error {
	if c.bytePos >= c.buf.Len() {
		return errorf(ExitCodeCorruptionError, "entropy stream ends at byte %d without EOI", c.bytePos)
	}
	if c.bitPos == 0 && c.buf.isMarker(c.bytePos) {
		if c.buf.at(c.bytePos+1) == MarkerEOI {
			c.state = stateDone
			return errEndOfScan
		}
		return errorf(ExitCodeCorruptionError, "unexpected marker FF %02X at byte %d",
			c.buf.at(c.bytePos+1), c.bytePos)
	}
	return nil
}

// stepBit moves one bit forward, hopping over the 0x00 that follows a
// literal 0xFF.
func (c *ScanCursor) stepBit() {
	c.bitPos++
	if c.bitPos == 8 {
		c.bitPos = 0
		c.bytePos++
		if c.bytePos < c.buf.Len() && c.buf.at(c.bytePos) == 0x00 && c.buf.at(c.bytePos-1) == 0xFF {
			c.bytePos++
		}
	}
}

// nextBit returns the next bit, MSB first
func (c *ScanCursor) nextBit() (uint8, error) {
	if err := c.checkReadable(); err != nil {
		return 0, err
	}
	bit := (c.buf.at(c.bytePos) >> (7 - c.bitPos)) & 1
	c.stepBit()
	return bit, nil
}

// readCoefficient decodes one Huffman symbol and skips its magnitude bits,
// recording where the last of them sits. The running index continues from
// c.current.Index.
func (c *ScanCursor) readCoefficient(table *HuffmanTrie, isAC bool) error {
	node := table.Root()
	for !table.IsLeaf(node) {
		bit, err := c.nextBit()
		if err != nil {
			return err
		}
		node = table.Traverse(node, bit)
		if node == NoNode {
			return errorf(ExitCodeCorruptionError, "invalid huffman code near byte %d", c.bytePos)
		}
	}
	symbol := table.Symbol(node)

	ref := CoefficientRef{BytePos: c.bytePos, BitPos: c.bitPos, Index: c.current.Index}
	var run, length uint8
	switch {
	case isAC && symbol == symbolEOB:
		ref.kind = coefficientEOB
		ref.Index = blockSize
		c.current = ref
		return nil
	case isAC && symbol == symbolZRL:
		ref.kind = coefficientZRL
		ref.Index += 16
	case isAC:
		run, length = symbol>>4, symbol&0x0F
		if length == 0 {
			return errorf(ExitCodeCorruptionError, "invalid AC symbol %02X", symbol)
		}
		ref.kind = coefficientAC
		ref.Index += run + 1
	default:
		length = symbol
		if length > 15 {
			return errorf(ExitCodeCorruptionError, "invalid DC magnitude length %d", length)
		}
		ref.kind = coefficientDC
		ref.Index++
	}

	if length > 0 {
		for i := uint8(1); i < length; i++ {
			if _, err := c.nextBit(); err != nil {
				return err
			}
		}
		if err := c.checkReadable(); err != nil {
			return err
		}
		ref.BytePos, ref.BitPos = c.bytePos, c.bitPos
		if _, err := c.nextBit(); err != nil {
			return err
		}
	}
	ref.Length = length

	if ref.Index > blockSize {
		return errorf(ExitCodeCorruptionError, "coefficient run overflows block at byte %d", c.bytePos)
	}
	c.current = ref
	return nil
}

// skipBlock decodes and discards one whole block of channel
func (c *ScanCursor) skipBlock(channel int) error {
	c.state = stateAtDcOfLuma
	c.current = CoefficientRef{}
	if err := c.readCoefficient(c.tables.Table(channel, false), false); err != nil {
		return err
	}
	c.state = stateAtAcOfLuma
	acTable := c.tables.Table(channel, true)
	for c.current.Index < blockSize {
		if err := c.readCoefficient(acTable, true); err != nil {
			return err
		}
	}
	return nil
}

// skipRestartMarker discards the padding bits up to the byte boundary and
// the RSTn marker that must follow.
func (c *ScanCursor) skipRestartMarker() error {
	c.state = stateAtRestartBoundary
	for c.bitPos != 0 {
		if _, err := c.nextBit(); err != nil {
			return err
		}
	}
	if c.bytePos+1 >= c.buf.Len() {
		return errorf(ExitCodeCorruptionError, "restart marker missing before MCU %d", c.mcusRead)
	}
	b0, b1 := c.buf.at(c.bytePos), c.buf.at(c.bytePos+1)
	if b0 != 0xFF || b1 < MarkerRST0 || b1 > MarkerRST7 {
		return errorf(ExitCodeCorruptionError,
			"restart marker missing before MCU %d, found %02X %02X", c.mcusRead, b0, b1)
	}
	log.Debugf("RST%d at byte %d before MCU %d", b1-MarkerRST0, c.bytePos, c.mcusRead)
	c.bytePos += 2
	return nil
}

// loadNextMCU skips the luminance blocks and the Cb DC of the next MCU and
// leaves the cursor before the first Cb AC coefficient.
func (c *ScanCursor) loadNextMCU() error {
	if c.mcusRead == c.layout.McuCount {
		c.state = stateDone
		return errEndOfScan
	}
	interval := uint32(c.layout.RestartInterval)
	if c.mcusRead > 0 && interval != 0 && c.mcusRead%interval == 0 {
		if err := c.skipRestartMarker(); err != nil {
			return err
		}
	}

	c.onSecondChrominance = false
	for i := uint16(0); i < c.layout.ColorCounts[ChannelY]; i++ {
		if err := c.skipBlock(ChannelY); err != nil {
			return err
		}
	}

	c.state = stateAtDcOfChroma
	c.current = CoefficientRef{}
	if err := c.readCoefficient(c.tables.Table(ChannelCb, false), false); err != nil {
		return err
	}
	c.state = stateAtAcOfChroma
	c.mcusRead++
	return nil
}

func (c *ScanCursor) chromaChannel() int {
	if c.onSecondChrominance {
		return ChannelCr
	}
	return ChannelCb
}

// advanceCursor decodes the next chrominance AC coefficient, moving on to
// the Cr block or the next MCU when the current block is exhausted.
func (c *ScanCursor) advanceCursor() error {
	if c.current.Index >= blockSize {
		if c.onSecondChrominance {
			if err := c.loadNextMCU(); err != nil {
				return err
			}
		} else {
			c.onSecondChrominance = true
			c.state = stateAtDcOfChroma
			c.current = CoefficientRef{}
			if err := c.readCoefficient(c.tables.Table(ChannelCr, false), false); err != nil {
				return err
			}
			c.state = stateAtAcOfChroma
		}
	}
	return c.readCoefficient(c.tables.Table(c.chromaChannel(), true), true)
}

// processBit finds the next eligible coefficient and reads or writes its
// last magnitude bit, then decodes one coefficient further. Reaching the end
// of the scan on that final step is not an error for this bit; the next call
// reports it.
func (c *ScanCursor) processBit(mode bitMode, bit uint8) (uint8, error) {
	if c.state == stateDone {
		return 0, errEndOfScan
	}
	for !isEligible(c.current) {
		if err := c.advanceCursor(); err != nil {
			return 0, err
		}
	}

	if mode == modeRead {
		bit = c.performRead()
	} else if err := c.performWrite(bit); err != nil {
		return 0, err
	}

	if err := c.advanceCursor(); err != nil && !errors.Is(err, errEndOfScan) {
		return bit, err
	}
	return bit, nil
}

func (c *ScanCursor) performRead() uint8 {
	shift := 7 - c.current.BitPos
	return (c.buf.at(c.current.BytePos) >> shift) & 1
}

// performWrite sets the current coefficient's last bit, keeping exactly one
// stuffing byte after every literal 0xFF.
func (c *ScanCursor) performWrite(bit uint8) error {
	ref := c.current
	mask := byte(1) << (7 - ref.BitPos)
	before := c.buf.at(ref.BytePos)
	if (before&mask != 0) == (bit == 1) {
		return nil
	}

	after := before ^ mask
	c.buf.set(ref.BytePos, after)

	switch {
	case after == 0xFF:
		c.buf.insertAt(ref.BytePos+1, 0x00)
		if c.bytePos > ref.BytePos {
			c.bytePos++
		}
		c.inserted++
		log.Debugf("stuffing byte inserted after byte %d", ref.BytePos)
	case before == 0xFF:
		if ref.BytePos+1 >= c.buf.Len() || c.buf.at(ref.BytePos+1) != 0x00 {
			return errorf(ExitCodeCorruptionError, "literal FF at byte %d is not stuffed", ref.BytePos)
		}
		c.buf.removeAt(ref.BytePos + 1)
		c.bytePos, c.bitPos = ref.BytePos, ref.BitPos
		c.stepBit()
		c.removed++
		log.Debugf("stuffing byte removed after byte %d", ref.BytePos)
	}
	return nil
}

// Bytes returns the scan buffer, including any resizing done by writes
func (c *ScanCursor) Bytes() []byte {
	return c.buf.Bytes()
}

// Current returns the most recently decoded coefficient
func (c *ScanCursor) Current() CoefficientRef {
	return c.current
}

// McusRead returns the number of MCUs entered so far
func (c *ScanCursor) McusRead() uint32 {
	return c.mcusRead
}

func (c *ScanCursor) String() string {
	return fmt.Sprintf("cursor{byte=%d bit=%d mcu=%d cr=%t state=%v index=%d}",
		c.bytePos, c.bitPos, c.mcusRead, c.onSecondChrominance, c.state, c.current.Index)
}

package steg

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header is everything the marker walk extracts before the scan data
type Header struct {
	Width  uint16
	Height uint16

	// Components is indexed by channel (Y, Cb, Cr)
	Components [ColorChannelCount]ComponentInfo

	Layout *ImageLayout
	Tables *HuffmanTableSet

	// ScanOffset is the byte offset of the first entropy-coded byte
	ScanOffset int64
}

// countingReader tracks how many bytes the marker walk has consumed
type countingReader struct {
	inner *bufio.Reader
	n     int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) readFull(p []byte, what string) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errorf(ExitCodeFormatError, "truncated jpeg while reading %s", what)
		}
		return wrapIO(err, fmt.Sprintf("failed to read %s", what))
	}
	return nil
}

// ParseHeader walks the marker segments of a JPEG up to and including SOS.
// r is read through a buffer and may be left past the scan start; callers
// locate the entropy-coded data with Header.ScanOffset.
func ParseHeader(r io.Reader) (*Header, error) {
	cr := &countingReader{inner: bufio.NewReader(r)}

	var soi [2]byte
	if err := cr.readFull(soi[:], "start marker"); err != nil {
		return nil, err
	}
	if soi != SOI {
		return nil, NewStegError(ExitCodeFormatError, "JPEG must start with 0xFF 0xD8")
	}

	h := &Header{Tables: NewHuffmanTableSet()}
	var restartInterval uint16
	sawFrame := false

	for {
		seg := make([]byte, 2)
		if err := cr.readFull(seg, "marker"); err != nil {
			return nil, err
		}
		if seg[0] != 0xFF {
			return nil, errorf(ExitCodeFormatError, "invalid marker %02x %02x", seg[0], seg[1])
		}
		// any number of 0xFF fill bytes may precede the marker type
		for seg[1] == 0xFF {
			if err := cr.readFull(seg[1:], "marker"); err != nil {
				return nil, err
			}
		}
		markerType := seg[1]
		if err := cr.readFull(seg, "segment length"); err != nil {
			return nil, err
		}
		segmentLen := int(binary.BigEndian.Uint16(seg))
		if segmentLen < 2 {
			return nil, errorf(ExitCodeFormatError, "segment %02x too short", markerType)
		}

		data := make([]byte, segmentLen-2)
		if err := cr.readFull(data, "segment data"); err != nil {
			return nil, err
		}
		log.Debugf("segment %02X length %d", markerType, segmentLen)

		switch {
		case markerType == MarkerSOF0:
			if sawFrame {
				return nil, NewStegError(ExitCodeFormatError, "multiple SOF markers")
			}
			if err := h.parseSOF0(data); err != nil {
				return nil, err
			}
			sawFrame = true
		case markerType == MarkerDHT:
			if err := h.Tables.ParseDHT(data); err != nil {
				return nil, err
			}
		case markerType == MarkerDRI:
			if len(data) != 2 {
				return nil, errorf(ExitCodeFormatError, "DRI segment has length %d", segmentLen)
			}
			restartInterval = binary.BigEndian.Uint16(data)
			log.Debugf("restart interval %d", restartInterval)
		case markerType == MarkerSOS:
			if !sawFrame {
				return nil, NewStegError(ExitCodeFormatError, "SOS before SOF0")
			}
			if err := h.parseSOS(data); err != nil {
				return nil, err
			}
			layout, err := h.buildLayout(restartInterval)
			if err != nil {
				return nil, err
			}
			h.Layout = layout
			h.ScanOffset = cr.n
			return h, nil
		case markerType > MarkerSOF0 && markerType <= MarkerSOF15 &&
			markerType != MarkerDHT && markerType != MarkerJPG && markerType != MarkerDAC:
			return nil, errorf(ExitCodeFormatError,
				"unsupported frame type %02X, only baseline jpeg is supported", markerType)
		case markerType == MarkerEOI || markerType == MarkerSOI:
			return nil, errorf(ExitCodeFormatError, "unexpected marker %02X before scan", markerType)
		default:
			// APPn, DQT, COM and the rest carry nothing the scan walk needs
		}
	}
}

// parseSOF0 parses a baseline Start Of Frame segment
func (h *Header) parseSOF0(data []byte) error {
	if len(data) < 6 {
		return NewStegError(ExitCodeFormatError, "SOF segment too short")
	}
	if precision := data[0]; precision != 8 {
		return errorf(ExitCodeFormatError, "%d bit precision not supported", precision)
	}
	h.Height = binary.BigEndian.Uint16(data[1:])
	h.Width = binary.BigEndian.Uint16(data[3:])
	n := int(data[5])

	if h.Height == 0 || h.Width == 0 {
		return NewStegError(ExitCodeFormatError, "image dimensions cannot be zero")
	}
	if n != ColorChannelCount {
		return errorf(ExitCodeFormatError, "image has %d components, only Y/Cb/Cr is supported", n)
	}
	if len(data) != 6+3*n {
		return errorf(ExitCodeFormatError, "SOF segment length %d does not match %d components", len(data)+2, n)
	}

	seen := [ColorChannelCount]bool{}
	for i := 0; i < n; i++ {
		id := data[6+3*i]
		if id < 1 || id > ColorChannelCount {
			return errorf(ExitCodeFormatError, "unsupported color id %d", id)
		}
		ch := int(id) - 1
		if seen[ch] {
			return errorf(ExitCodeFormatError, "color id %d declared twice", id)
		}
		seen[ch] = true

		sampling := data[6+3*i+1]
		h.Components[ch] = ComponentInfo{
			Jid:         id,
			Sfh:         sampling >> 4,
			Sfv:         sampling & 0x0F,
			QTableIndex: data[6+3*i+2],
		}
		if h.Components[ch].Sfh == 0 || h.Components[ch].Sfv == 0 {
			return errorf(ExitCodeFormatError, "color id %d has a zero sampling factor", id)
		}
	}
	log.Debugf("SOF0 %dx%d sampling Y=%dx%d Cb=%dx%d Cr=%dx%d", h.Width, h.Height,
		h.Components[0].Sfh, h.Components[0].Sfv,
		h.Components[1].Sfh, h.Components[1].Sfv,
		h.Components[2].Sfh, h.Components[2].Sfv)
	return nil
}

// parseSOS parses the Start Of Scan segment and binds each channel to its tables
func (h *Header) parseSOS(data []byte) error {
	if len(data) < 1 {
		return NewStegError(ExitCodeFormatError, "SOS segment too short")
	}
	n := int(data[0])
	if n != ColorChannelCount || len(data) != 1+2*n+3 {
		return NewStegError(ExitCodeFormatError, "invalid SOS segment")
	}

	seen := [ColorChannelCount]bool{}
	for i := 0; i < n; i++ {
		id := data[1+2*i]
		if id < 1 || id > ColorChannelCount || seen[id-1] {
			return errorf(ExitCodeFormatError, "invalid SOS component id %d", id)
		}
		// The cursor walks Y, Cb, Cr in that order.
		if int(id) != i+1 {
			return errorf(ExitCodeFormatError, "scan component %d out of order", id)
		}
		ch := int(id) - 1
		seen[ch] = true

		selectors := data[1+2*i+1]
		h.Components[ch].HuffDC = selectors >> 4
		h.Components[ch].HuffAC = selectors & 0x0F
		if err := h.Tables.Bind(ch, h.Components[ch].HuffDC, h.Components[ch].HuffAC); err != nil {
			return err
		}
	}
	// spectral selection and successive approximation bytes are fixed for baseline
	return nil
}

func (h *Header) buildLayout(restartInterval uint16) (*ImageLayout, error) {
	var counts [ColorChannelCount]uint16
	for ch := range h.Components {
		counts[ch] = h.Components[ch].BlocksPerMcu()
	}
	luma := h.Components[ChannelY]
	mcus := mcuCountFor(h.Width, h.Height, luma.Sfh, luma.Sfv)
	layout, err := NewImageLayout(restartInterval, counts, mcus)
	if err != nil {
		return nil, err
	}
	log.Debugf("layout %v", layout)
	return layout, nil
}

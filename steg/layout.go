package steg

import "fmt"

// ComponentInfo holds the frame and scan parameters of one color component
type ComponentInfo struct {
	// Jid is the component id from the frame header (1 = Y, 2 = Cb, 3 = Cr)
	Jid uint8

	// Sfh is the horizontal sampling factor
	Sfh uint8

	// Sfv is the vertical sampling factor
	Sfv uint8

	// QTableIndex is the quantization table index
	QTableIndex uint8

	// HuffDC is the DC Huffman table id selected by the scan
	HuffDC uint8

	// HuffAC is the AC Huffman table id selected by the scan
	HuffAC uint8
}

// BlocksPerMcu returns the number of 8x8 blocks this component codes per MCU
func (c *ComponentInfo) BlocksPerMcu() uint16 {
	return uint16(c.Sfh) * uint16(c.Sfv)
}

// ImageLayout is the scan geometry the entropy walk needs. It never changes
// once built.
type ImageLayout struct {
	// RestartInterval is the number of MCUs between restart markers, 0 if disabled
	RestartInterval uint16

	// ColorCounts is the number of blocks per MCU for Y, Cb and Cr
	ColorCounts [ColorChannelCount]uint16

	// McuCount is the number of MCUs in the scan
	McuCount uint32
}

// NewImageLayout validates and builds a layout. Only one block per MCU is
// supported for each chrominance channel.
func NewImageLayout(restartInterval uint16, colorCounts [ColorChannelCount]uint16, mcuCount uint32) (*ImageLayout, error) {
	if colorCounts[ChannelY] == 0 {
		return nil, NewStegError(ExitCodeFormatError, "luminance has no blocks per MCU")
	}
	for _, ch := range []int{ChannelCb, ChannelCr} {
		if colorCounts[ch] != 1 {
			return nil, errorf(ExitCodeFormatError,
				"unsupported chrominance sampling: channel %d has %d blocks per MCU", ch, colorCounts[ch])
		}
	}
	if mcuCount == 0 {
		return nil, NewStegError(ExitCodeFormatError, "image has no MCUs")
	}
	return &ImageLayout{
		RestartInterval: restartInterval,
		ColorCounts:     colorCounts,
		McuCount:        mcuCount,
	}, nil
}

// TotalPixels returns the number of luminance samples covered by all MCUs
func (l *ImageLayout) TotalPixels() uint64 {
	return uint64(l.McuCount) * blockSize * uint64(l.ColorCounts[ChannelY])
}

func (l *ImageLayout) String() string {
	return fmt.Sprintf("mcus=%d colors=%v restart=%d", l.McuCount, l.ColorCounts, l.RestartInterval)
}

// mcuCountFor returns how many MCUs tile a width x height image when the
// luminance component has sampling factors h x v.
func mcuCountFor(width, height uint16, h, v uint8) uint32 {
	mcuWidth := 8 * uint32(h)
	mcuHeight := 8 * uint32(v)
	mcuh := (uint32(width) + mcuWidth - 1) / mcuWidth
	mcuv := (uint32(height) + mcuHeight - 1) / mcuHeight
	return mcuh * mcuv
}

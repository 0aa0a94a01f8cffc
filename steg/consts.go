// Package steg hides byte messages in the entropy-coded scan of baseline JPEG files
// by rewriting the last magnitude bit of chrominance AC coefficients.
package steg

import "github.com/op/go-logging"

var log = logging.MustGetLogger("steg")

// JPEG marker codes (second byte, the first is always 0xFF)
const (
	MarkerSOF0  = 0xC0 // Baseline DCT
	MarkerSOF2  = 0xC2 // Progressive DCT
	MarkerDHT   = 0xC4 // Define Huffman Table
	MarkerJPG   = 0xC8 // Reserved for extensions
	MarkerDAC   = 0xCC // Define Arithmetic Coding
	MarkerSOF15 = 0xCF // Last frame type marker
	MarkerRST0  = 0xD0 // Restart marker 0
	MarkerRST7  = 0xD7 // Restart marker 7
	MarkerSOI   = 0xD8 // Start Of Image
	MarkerEOI   = 0xD9 // End Of Image
	MarkerSOS   = 0xDA // Start Of Scan
	MarkerDQT   = 0xDB // Define Quantization Table
	MarkerDRI   = 0xDD // Define Restart Interval
)

// Color channels, in the order their ids (1, 2, 3) appear in the frame
const (
	ChannelY  = 0 // luminance
	ChannelCb = 1 // blue chrominance
	ChannelCr = 2 // red chrominance

	// ColorChannelCount is the number of supported color channels (Y, Cb, Cr)
	ColorChannelCount = 3
)

const (
	// blockSize is the number of coefficients in one 8x8 block, DC included
	blockSize = 64

	// symbolEOB ends a block, symbolZRL is a run of 16 zero coefficients
	symbolEOB = 0x00
	symbolZRL = 0xF0

	// maxCodeLength is the longest Huffman code a DHT segment can declare
	maxCodeLength = 16

	// MaxTableSlots is the number of Huffman table slots, indexed by 2*tableID + isAC
	MaxTableSlots = 8

	// maxDeclaredTables caps how many tables may be populated (2 per channel)
	maxDeclaredTables = 6
)

// SOI is the JPEG Start Of Image marker
var SOI = [2]byte{0xFF, MarkerSOI}

// EOI is the JPEG End Of Image marker
var EOI = [2]byte{0xFF, MarkerEOI}

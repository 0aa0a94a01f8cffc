package steg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// readScan loads the next streamLength bytes of r into memory
func readScan(r io.Reader, streamLength int64) ([]byte, error) {
	if streamLength < 2 {
		return nil, errorf(ExitCodeCorruptionError, "scan data of %d bytes cannot hold EOI", streamLength)
	}
	scan := make([]byte, streamLength)
	if _, err := io.ReadFull(r, scan); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errorf(ExitCodeCorruptionError, "scan data shorter than %d bytes", streamLength)
		}
		return nil, wrapIO(err, "failed to read scan data")
	}
	return scan, nil
}

// MeasureCapacity reads the remaining streamLength bytes of r, which must
// start at the first byte after SOS, and returns how many message bytes fit.
func MeasureCapacity(r io.Reader, layout *ImageLayout, tables *HuffmanTableSet, streamLength int64) (int, error) {
	scan, err := readScan(r, streamLength)
	if err != nil {
		return 0, err
	}
	return NewEntropyCodec(layout, tables).MeasureCapacity(scan)
}

// truncater is implemented by *os.File
type truncater interface {
	Truncate(size int64) error
}

// EmbedMessage hides message in the scan starting at the current position
// of rws. Nothing is written unless the whole message and its terminator
// fit. When stuffing changes shrink the scan, rws must support Truncate;
// otherwise an IOError is returned before anything is written, since the
// stale tail would follow EOI.
func EmbedMessage(rws io.ReadWriteSeeker, layout *ImageLayout, tables *HuffmanTableSet, message []byte, streamLength int64) error {
	start, err := rws.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapIO(err, "failed to locate scan data")
	}
	scan, err := readScan(rws, streamLength)
	if err != nil {
		return err
	}

	out, err := NewEntropyCodec(layout, tables).Embed(scan, message)
	if err != nil {
		return err
	}

	t, canTruncate := rws.(truncater)
	if len(out) < len(scan) && !canTruncate {
		return errorf(ExitCodeIOError,
			"scan shrinks by %d bytes and the target cannot be truncated", len(scan)-len(out))
	}

	if _, err := rws.Seek(start, io.SeekStart); err != nil {
		return wrapIO(err, "failed to rewind to scan data")
	}
	if _, err := rws.Write(out); err != nil {
		return wrapIO(err, "failed to write scan data")
	}
	if len(out) < len(scan) {
		if err := t.Truncate(start + int64(len(out))); err != nil {
			return wrapIO(err, "failed to truncate")
		}
		log.Debugf("scan shrank by %d bytes", len(scan)-len(out))
	}
	return nil
}

// ExtractMessage recovers a message from the scan starting at the current
// position of r.
func ExtractMessage(r io.Reader, layout *ImageLayout, tables *HuffmanTableSet, streamLength int64) ([]byte, error) {
	scan, err := readScan(r, streamLength)
	if err != nil {
		return nil, err
	}
	return NewEntropyCodec(layout, tables).Extract(scan)
}

// Image is a JPEG held in memory with its header already parsed, so several
// operations on the same file walk the markers only once.
type Image struct {
	Header *Header

	data  []byte
	codec *EntropyCodec
}

// ParseImage parses the header of jpg. The slice is retained, not copied.
func ParseImage(jpg []byte) (*Image, error) {
	h, err := ParseHeader(bytes.NewReader(jpg))
	if err != nil {
		return nil, err
	}
	if h.ScanOffset > int64(len(jpg)) {
		return nil, fmt.Errorf("scan offset %d beyond %d bytes: %w", h.ScanOffset, len(jpg), ErrFormat)
	}
	return &Image{
		Header: h,
		data:   jpg,
		codec:  NewEntropyCodec(h.Layout, h.Tables),
	}, nil
}

func (img *Image) scan() []byte {
	return img.data[img.Header.ScanOffset:]
}

// Capacity returns how many message bytes can be hidden in the image
func (img *Image) Capacity() (int, error) {
	return img.codec.MeasureCapacity(img.scan())
}

// Hide returns a new file with message embedded. The image is not modified.
func (img *Image) Hide(message []byte) ([]byte, error) {
	scan, err := img.codec.Embed(img.scan(), message)
	if err != nil {
		return nil, err
	}
	off := int(img.Header.ScanOffset)
	out := make([]byte, 0, off+len(scan))
	out = append(out, img.data[:off]...)
	return append(out, scan...), nil
}

// Reveal returns the message hidden in the image, which may be empty
func (img *Image) Reveal() ([]byte, error) {
	return img.codec.Extract(img.scan())
}

// Capacity returns how many message bytes can be hidden in jpg
func Capacity(jpg []byte) (int, error) {
	img, err := ParseImage(jpg)
	if err != nil {
		return 0, err
	}
	return img.Capacity()
}

// Hide returns a copy of jpg with message embedded. jpg is not modified.
func Hide(jpg, message []byte) ([]byte, error) {
	img, err := ParseImage(jpg)
	if err != nil {
		return nil, err
	}
	return img.Hide(message)
}

// Reveal returns the message hidden in jpg, which may be empty
func Reveal(jpg []byte) ([]byte, error) {
	img, err := ParseImage(jpg)
	if err != nil {
		return nil, err
	}
	return img.Reveal()
}

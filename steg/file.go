package steg

import (
	"os"
	"path/filepath"
)

func readImageFile(path string) ([]byte, error) {
	jpg, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapIO(err, "failed to read "+path)
	}
	return jpg, nil
}

// CapacityOfFile returns how many message bytes fit in the JPEG at path
func CapacityOfFile(path string) (int, error) {
	jpg, err := readImageFile(path)
	if err != nil {
		return 0, err
	}
	return Capacity(jpg)
}

// RevealFromFile returns the message hidden in the JPEG at path
func RevealFromFile(path string) ([]byte, error) {
	jpg, err := readImageFile(path)
	if err != nil {
		return nil, err
	}
	return Reveal(jpg)
}

// ReadImageFile reads and parses the JPEG at path
func ReadImageFile(path string) (*Image, error) {
	jpg, err := readImageFile(path)
	if err != nil {
		return nil, err
	}
	return ParseImage(jpg)
}

// HideInFile embeds message in the JPEG at path. The new image is written to
// a temporary file in the same directory and renamed over the original, so
// a failed embed leaves the original untouched.
func HideInFile(path string, message []byte) error {
	img, err := ReadImageFile(path)
	if err != nil {
		return err
	}

	capacity, err := img.Capacity()
	if err != nil {
		return err
	}
	if len(message) > capacity {
		return errorf(ExitCodeCapacityError, "message of %d bytes exceeds capacity of %d bytes", len(message), capacity)
	}

	out, err := img.Hide(message)
	if err != nil {
		return err
	}
	return WriteImageFile(path, out)
}

// WriteImageFile atomically replaces the file at path with data, keeping its
// permission bits.
func WriteImageFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return wrapIO(err, "failed to stat "+path)
	}
	return replaceFile(path, data, info.Mode().Perm())
}

func replaceFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return wrapIO(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return wrapIO(err, "failed to write "+tmpName)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return wrapIO(err, "failed to set mode on "+tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrapIO(err, "failed to sync "+tmpName)
	}
	if err := tmp.Close(); err != nil {
		return wrapIO(err, "failed to close "+tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return wrapIO(err, "failed to replace "+path)
	}
	committed = true
	log.Debugf("wrote %d bytes to %s", len(data), path)
	return nil
}

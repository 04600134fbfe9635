package cart

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// LoadFile reads a ROM image from disk, decompressing .zip, .7z and .gz
// containers. For archives, the first .gb file (or the first entry when none
// match) is used.
func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ROM: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return loadZip(data)
	case ".7z":
		return load7z(data)
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompress gzip: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}

func loadZip(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("zip archive is empty")
	}
	f := zr.File[0]
	for _, cand := range zr.File {
		if strings.HasSuffix(strings.ToLower(cand.Name), ".gb") {
			f = cand
			break
		}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in zip: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out, nil
}

func load7z(data []byte) ([]byte, error) {
	zr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("7z archive is empty")
	}
	f := zr.File[0]
	for _, cand := range zr.File {
		if strings.HasSuffix(strings.ToLower(cand.Name), ".gb") {
			f = cand
			break
		}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in 7z: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out, nil
}

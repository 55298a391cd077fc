// package rirfetch ...
package rirfetch

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// readCloser closes the decoder and the underlying file
type readCloser struct {
	io.Reader
	closer func() error
}

func (r readCloser) Close() error { return r.closer() }

// Open returns a reader over the plain text of a source file. The
// compression is picked by extension: .zst, .gz, anything else is plain.
func Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("[rirfetch] [open] unable to read file [%s] [%w]", name, err)
	}
	switch {
	case strings.HasSuffix(name, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("[rirfetch] [open] [zstd] [%s] [%w]", name, err)
		}
		return readCloser{dec, func() error { dec.Close(); return f.Close() }}, nil
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("[rirfetch] [open] [gzip] [%s] [%w]", name, err)
		}
		return readCloser{gz, func() error { return errors.Join(gz.Close(), f.Close()) }}, nil
	}
	return f, nil
}

// isReadable ...
func isReadable(filename string) bool {
	f, err := os.Open(filename)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// ensureDir ...
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("[rirfetch] [store] unable to create [%s] [%w]", dir, err)
	}
	return nil
}

// compress packs a source body for the cache
func compress(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderCRC(true),
		zstd.WithZeroFrames(false),
		zstd.WithSingleSegment(true),
		zstd.WithAllLitEntropyCompression(true))
	if err != nil {
		return nil, fmt.Errorf("[rirfetch] [compress] unable to create new zstd writer [%w]", err)
	}
	out := w.EncodeAll(data, nil)
	return out, w.Close()
}

// writeFileAtomic writes via temp file and rename, readers never see a partial file
func writeFileAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := ensureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[rirfetch] [write] [%s] [%w]", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[rirfetch] [write] [%s] [%w]", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[rirfetch] [write] [%s] [%w]", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		return fmt.Errorf("[rirfetch] [write] [%s] [%w]", name, err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("[rirfetch] [write] [%s] [%w]", name, err)
	}
	return nil
}

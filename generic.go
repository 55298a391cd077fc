package rir2cidr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// writeAtomic streams fn into a temp file next to path and renames it
// into place, .zst targets are compressed on the fly
func writeAtomic(path string, fn func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[rir2cidr] [write] unable to write [%s] [%w]", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(tmp,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderCRC(true),
			zstd.WithZeroFrames(false))
		if err != nil {
			return fmt.Errorf("[rir2cidr] [write] unable to create new zstd writer [%w]", err)
		}
		w = enc
	}
	if err = fn(w); err != nil {
		return fmt.Errorf("[rir2cidr] [write] [%s] [%w]", path, err)
	}
	if enc != nil {
		if err = enc.Close(); err != nil {
			return fmt.Errorf("[rir2cidr] [write] [%s] [%w]", path, err)
		}
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("[rir2cidr] [write] [%s] [%w]", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("[rir2cidr] [write] [%s] [%w]", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("[rir2cidr] [write] [%s] [%w]", path, err)
	}
	return nil
}

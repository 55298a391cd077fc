package rir2cidr

import (
	"bufio"
	"errors"
	"io"
	"time"

	"paepcke.de/rir2cidr/netblock"
)

// output formats
const (
	FormatPlain = "plain"
	FormatPF    = "pf"
)

// const shortcuts
const (
	// HEADER
	_LF = "\n"
	_H1 = "#" + _LF
	_H2 = "# pf(4) RIR COUNTRY STATIC TABLES" + _LF
	_H3 = "# Do not edit manually! - This file is auto-generated via rir2cidr " // + timestamp
	_H4 = "# please add to /etc/pf.conf -> include "                            // + filename
	_H5 = "# restart - to see stats: pfctl -vvsT" + _LF

	_TABLE_IP4  = "rir_ip4"
	_TABLE_IP6  = "rir_ip6"
	_TABLE_OPTS = "const persist"
)

// ErrFormat ...
var ErrFormat = errors.New("[rir2cidr] [output] unknown format")

// FormatList writes v4 then v6 blocks to w
func FormatList(w io.Writer, format string, v4, v6 []netblock.Block) error {
	return formatList(w, format, "", time.Now(), v4, v6)
}

// formatList ...
func formatList(w io.Writer, format, file string, now time.Time, v4, v6 []netblock.Block) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	switch format {
	case FormatPlain, "":
		for _, set := range [][]netblock.Block{v4, v6} {
			for _, b := range set {
				buf = append(b.AppendTo(buf[:0]), '\n')
				if _, err := bw.Write(buf); err != nil {
					return err
				}
			}
		}
	case FormatPF:
		header := _H1 + _H2 + _H3 + "[ " + now.UTC().Format(time.RFC3339) + " ]" + _LF
		if file != "" {
			header += _H1 + _H4 + "\"" + file + "\"" + _LF
		}
		header += _H5 + _LF
		if _, err := bw.WriteString(header); err != nil {
			return err
		}
		if err := pfTable(bw, _TABLE_IP4, v4); err != nil {
			return err
		}
		if err := pfTable(bw, _TABLE_IP6, v6); err != nil {
			return err
		}
	default:
		return errors.Join(ErrFormat, errors.New("["+format+"]"))
	}
	return bw.Flush()
}

// pfTable writes a single line pf(4) table definition
func pfTable(w *bufio.Writer, name string, blocks []netblock.Block) error {
	if _, err := w.WriteString("table <" + name + "> " + _TABLE_OPTS + " { "); err != nil {
		return err
	}
	buf := make([]byte, 0, 64)
	for _, b := range blocks {
		buf = append(b.AppendTo(buf[:0]), ' ')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	_, err := w.WriteString("}" + _LF)
	return err
}

// WriteList atomically replaces path with the formatted list,
// a .zst suffix selects zstd compression
func WriteList(path, format string, v4, v6 []netblock.Block) error {
	return writeAtomic(path, func(w io.Writer) error {
		return formatList(w, format, path, time.Now(), v4, v6)
	})
}

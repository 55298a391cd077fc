package rir2cidr

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paepcke.de/rir2cidr/netblock"
	"paepcke.de/rir2cidr/rirfetch"
)

var (
	outV4 = []netblock.Block{netblock.MustParse("10.0.0.0/8"), netblock.MustParse("192.0.2.0/24")}
	outV6 = []netblock.Block{netblock.MustParse("2001:db8::/32")}
)

func TestFormatPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatList(&buf, FormatPlain, outV4, outV6); err != nil {
		t.Fatal(err)
	}
	if want := "10.0.0.0/8\n192.0.2.0/24\n2001:db8::/32\n"; buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
	buf.Reset()
	if err := FormatList(&buf, FormatPlain, nil, nil); err != nil || buf.Len() != 0 {
		t.Fatalf("empty lists: %q, %v", buf.String(), err)
	}
}

func TestFormatPF(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := formatList(&buf, FormatPF, "/etc/pf.rir", now, outV4, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"# pf(4) RIR COUNTRY STATIC TABLES\n",
		"[ 2024-01-02T03:04:05Z ]\n",
		"include \"/etc/pf.rir\"\n",
		"table <rir_ip4> const persist { 10.0.0.0/8 192.0.2.0/24 }\n",
		"table <rir_ip6> const persist { }\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
}

func TestFormatUnknown(t *testing.T) {
	if err := FormatList(io.Discard, "csv", outV4, outV6); !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestWriteList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"list.txt", "list.zst"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("old content\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := WriteList(path, FormatPlain, outV4, outV6); err != nil {
			t.Fatal(err)
		}
		rc, err := rirfetch.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "10.0.0.0/8\n192.0.2.0/24\n2001:db8::/32\n" {
			t.Fatalf("%s: got %q", name, data)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteListFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteList(path, "csv", outV4, outV6); err == nil {
		t.Fatalf("expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old\n" {
		t.Fatalf("target replaced on failure: %q", data)
	}
	if err := WriteList(filepath.Join(dir, "missing", "list.txt"), FormatPlain, outV4, outV6); err == nil {
		t.Fatalf("expected error for missing directory")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

package codec

import (
	"bytes"
	"compress/gzip"
	"io"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

const compressedYAML = `
_meta:
  text:
    type: characters
HQw5:
  text: Compressed corpus contents.
`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

func TestDecompressSniffing(t *testing.T) {
	plain := []byte(compressedYAML)
	tests := []struct {
		name string
		data []byte
	}{
		{"plain", plain},
		{"gzip", gzipBytes(t, plain)},
		{"xz", xzBytes(t, plain)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decompress(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Decompress() = %v, want nil", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() = %v, want nil", err)
			}
			if !bytes.Equal(got, plain) {
				t.Error("decompressed bytes differ from input")
			}
		})
	}
}

func TestDecompressEmptyInput(t *testing.T) {
	r, err := Decompress(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Decompress() = %v, want nil", err)
	}
	if got, _ := io.ReadAll(r); len(got) != 0 {
		t.Errorf("ReadAll() = %q, want empty", got)
	}
}

func TestLoadCompressed(t *testing.T) {
	r, err := Decompress(bytes.NewReader(xzBytes(t, []byte(compressedYAML))))
	if err != nil {
		t.Fatalf("Decompress() = %v, want nil", err)
	}
	c, err := Load(r)
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if !c.Has("HQw5") {
		t.Error("corpus should contain the compressed document")
	}
}

func TestDumpFileLoadFile(t *testing.T) {
	src, err := LoadString(corpusYAML)
	if err != nil {
		t.Fatalf("LoadString() = %v, want nil", err)
	}
	want, err := DumpString(src)
	if err != nil {
		t.Fatalf("DumpString() = %v, want nil", err)
	}

	dir := t.TempDir()
	for _, name := range []string{"c.yaml", "c.yaml.gz", "c.yaml.xz", "c.json", "c.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := DumpFile(path, src); err != nil {
				t.Fatalf("DumpFile() = %v, want nil", err)
			}
			c, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() = %v, want nil", err)
			}
			got, err := DumpString(c)
			if err != nil {
				t.Fatalf("DumpString() = %v, want nil", err)
			}
			if got != want {
				t.Errorf("corpus changed through %s:\n--- want\n%s\n--- got\n%s", name, want, got)
			}
		})
	}
}

func TestDumpFileAsOverridesExtension(t *testing.T) {
	src, err := LoadString(corpusYAML)
	if err != nil {
		t.Fatalf("LoadString() = %v, want nil", err)
	}
	want, err := DumpString(src)
	if err != nil {
		t.Fatalf("DumpString() = %v, want nil", err)
	}

	path := filepath.Join(t.TempDir(), "corpus.dat")
	if err := DumpFileAs(path, "json", src); err != nil {
		t.Fatalf("DumpFileAs() = %v, want nil", err)
	}
	var ld Loader
	c, err := ld.LoadFileAs(path, "json")
	if err != nil {
		t.Fatalf("LoadFileAs() = %v, want nil", err)
	}
	got, err := DumpString(c)
	if err != nil {
		t.Fatalf("DumpString() = %v, want nil", err)
	}
	if got != want {
		t.Errorf("corpus changed through format override:\n--- want\n%s\n--- got\n%s", want, got)
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"corpus.yaml", "yaml"},
		{"corpus.yml", "yaml"},
		{"corpus.json", "json"},
		{"corpus.json.gz", "json"},
		{"corpus.yaml.xz", "yaml"},
		{"corpus.json.gz.xz", "json"},
		{"corpus", "yaml"},
	}
	for _, tt := range tests {
		if got := formatOf(tt.path); got != tt.want {
			t.Errorf("formatOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

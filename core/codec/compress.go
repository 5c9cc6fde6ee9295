package codec

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	strataerr "github.com/strata-nlp/strata/core/errors"
	"github.com/strata-nlp/strata/core/model"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// Decompress wraps r with the right decompressor based on its magic
// bytes. Uncompressed input passes through unchanged.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, xzMagic):
		return xz.NewReader(br)
	}
	return br, nil
}

// LoadFile reads a corpus from a file. Compression is detected from
// content and the format from the file name: .json means JSON,
// anything else is YAML.
func (ld *Loader) LoadFile(path string) (*model.Corpus, error) {
	return ld.LoadFileAs(path, formatOf(path))
}

// LoadFileAs reads a corpus from a file in the given format ("json" or
// "yaml"), regardless of the file name. Compression is detected from
// content.
func (ld *Loader) LoadFileAs(path, format string) (*model.Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &strataerr.LoadError{Message: "cannot open corpus file", Err: err}
	}
	defer f.Close()
	r, err := Decompress(f)
	if err != nil {
		return nil, &strataerr.LoadError{Message: "cannot decompress corpus file", Err: err}
	}
	if format == "json" {
		return ld.LoadJSON(r)
	}
	return ld.Load(r)
}

// LoadFile reads a corpus file with default settings.
func LoadFile(path string) (*model.Corpus, error) {
	var ld Loader
	return ld.LoadFile(path)
}

// DumpFile writes a corpus to a file. The format and compression are
// chosen from the file name: .json for JSON, .gz and .xz suffixes
// for compression.
func DumpFile(path string, c *model.Corpus) error {
	return DumpFileAs(path, formatOf(path), c)
}

// DumpFileAs writes a corpus to a file in the given format ("json" or
// "yaml"), regardless of the file name. Compression still follows the
// .gz and .xz suffixes.
func DumpFileAs(path, format string, c *model.Corpus) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var closer io.Closer
	switch {
	case strings.HasSuffix(path, ".gz"):
		zw := gzip.NewWriter(f)
		w, closer = zw, zw
	case strings.HasSuffix(path, ".xz"):
		zw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return err
		}
		w, closer = zw, zw
	}

	var dumpErr error
	if format == "json" {
		dumpErr = DumpJSON(w, c)
	} else {
		dumpErr = Dump(w, c)
	}
	if closer != nil {
		if err := closer.Close(); err != nil && dumpErr == nil {
			dumpErr = err
		}
	}
	if err := f.Close(); err != nil && dumpErr == nil {
		dumpErr = err
	}
	return dumpErr
}

// formatOf returns "json" or "yaml" for a corpus path, ignoring
// compression suffixes.
func formatOf(path string) string {
	ext := filepath.Ext(path)
	for ext == ".gz" || ext == ".xz" {
		path = strings.TrimSuffix(path, ext)
		ext = filepath.Ext(path)
	}
	if ext == ".json" {
		return "json"
	}
	return "yaml"
}

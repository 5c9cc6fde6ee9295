// Command strata works with layer-based stand-off annotation corpora:
// converting between formats, validating, fetching remote corpora and
// keeping corpora in a local SQLite store.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/alecthomas/kong"

	"github.com/strata-nlp/strata/core/cas"
	"github.com/strata-nlp/strata/core/codec"
	"github.com/strata-nlp/strata/core/model"
	"github.com/strata-nlp/strata/core/sqlite"
	"github.com/strata-nlp/strata/core/store"
	"github.com/strata-nlp/strata/internal/logging"
)

const version = "0.1.0"

// CLI defines the command-line interface for strata.
var CLI struct {
	// Global flags
	CacheDir string `name:"cache-dir" help:"Blob cache directory for fetched corpora" type:"path"`
	Offline  bool   `help:"Serve remote corpora from the blob cache only"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info"`
	LogJSON  bool   `name:"log-json" help:"Log in JSON format"`

	// Command groups (noun-first organization)
	Corpus  CorpusGroup `cmd:"" help:"Corpus operations (convert, validate, info, fetch)"`
	Doc     DocGroup    `cmd:"" help:"Document operations"`
	Store   StoreGroup  `cmd:"" help:"SQLite corpus store operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// CorpusGroup contains corpus file operations.
type CorpusGroup struct {
	Convert  ConvertCmd  `cmd:"" help:"Convert a corpus between YAML and JSON, compressed or not"`
	Validate ValidateCmd `cmd:"" help:"Validate a corpus file"`
	Info     InfoCmd     `cmd:"" help:"Display corpus structure summary"`
	Fetch    FetchCmd    `cmd:"" help:"Fetch a corpus from a URL"`
}

// DocGroup contains document operations.
type DocGroup struct {
	Key KeyCmd `cmd:"" help:"Compute the content key of a text file"`
}

// StoreGroup contains SQLite corpus store operations.
type StoreGroup struct {
	Import StoreImportCmd `cmd:"" help:"Import a corpus file into a store"`
	Export StoreExportCmd `cmd:"" help:"Export a store to a corpus file"`
	Info   StoreInfoCmd   `cmd:"" help:"Display store summary and driver info"`
}

// fetcher builds the shared remote fetcher, backed by the blob cache
// when --cache-dir is set.
func fetcher() (*codec.Fetcher, error) {
	var blobs *cas.Store
	if CLI.CacheDir != "" {
		var err error
		blobs, err = cas.NewStore(CLI.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("open blob cache: %w", err)
		}
	}
	f := codec.NewFetcher(blobs)
	f.Offline = CLI.Offline
	return f, nil
}

// loader builds a corpus loader whose _uri references resolve through
// the fetcher.
func loader(ctx context.Context) (*codec.Loader, error) {
	f, err := fetcher()
	if err != nil {
		return nil, err
	}
	return &codec.Loader{Resolver: f.Resolver(ctx)}, nil
}

// ConvertCmd converts a corpus between serialization forms.
type ConvertCmd struct {
	In   string `arg:"" help:"Input corpus file" type:"existingfile"`
	Out  string `arg:"" help:"Output corpus file; format and compression follow the extension" type:"path"`
	From string `help:"Override the input format" enum:",yaml,json" default:""`
	To   string `help:"Override the output format" enum:",yaml,json" default:""`
}

func (c *ConvertCmd) Run() error {
	ld, err := loader(context.Background())
	if err != nil {
		return err
	}
	var corpus *model.Corpus
	if c.From != "" {
		corpus, err = ld.LoadFileAs(c.In, c.From)
	} else {
		corpus, err = ld.LoadFile(c.In)
	}
	if err != nil {
		return err
	}
	if c.To != "" {
		err = codec.DumpFileAs(c.Out, c.To, corpus)
	} else {
		err = codec.DumpFile(c.Out, corpus)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d documents to %s\n", corpus.Len(), c.Out)
	return nil
}

// ValidateCmd loads a corpus, which checks schema, indexes, links and
// document keys, and reports the result.
type ValidateCmd struct {
	Path string `arg:"" help:"Corpus file to validate" type:"existingfile"`
}

func (c *ValidateCmd) Run() error {
	ld, err := loader(context.Background())
	if err != nil {
		return err
	}
	corpus, err := ld.LoadFile(c.Path)
	if err != nil {
		return fmt.Errorf("corpus is invalid: %w", err)
	}
	fmt.Printf("Corpus is valid: %d layers, %d documents\n", len(corpus.Meta()), corpus.Len())
	return nil
}

// InfoCmd prints a corpus structure summary.
type InfoCmd struct {
	Path string `arg:"" help:"Corpus file" type:"existingfile"`
}

func (c *InfoCmd) Run() error {
	ld, err := loader(context.Background())
	if err != nil {
		return err
	}
	corpus, err := ld.LoadFile(c.Path)
	if err != nil {
		return err
	}
	printCorpusInfo(corpus)
	return nil
}

func printCorpusInfo(corpus *model.Corpus) {
	if uri := corpus.URI(); uri != "" {
		fmt.Printf("URI: %s\n", uri)
	}
	fmt.Println("Layers")
	fmt.Println("------")
	meta := corpus.Meta()
	for _, name := range sortedLayerNames(meta) {
		desc := meta[name]
		line := fmt.Sprintf("  %s: %s", name, desc.Kind)
		if desc.On != "" {
			line += fmt.Sprintf(" on %s", desc.On)
		}
		if desc.Data != model.DataNone {
			line += fmt.Sprintf(" (%s)", desc.Data)
		}
		fmt.Println(line)
	}

	ids := corpus.DocIDs()
	fmt.Println()
	fmt.Printf("Documents (%d)\n", len(ids))
	fmt.Println("---------")
	for i, id := range ids {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(ids)-10)
			break
		}
		fmt.Printf("  %d. %s\n", i+1, id)
	}
}

func sortedLayerNames(meta model.Meta) []string {
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FetchCmd fetches a corpus from a URL, archiving the payload in the
// blob cache when one is configured.
type FetchCmd struct {
	URL string `arg:"" help:"Corpus URL"`
	Out string `help:"Write the fetched corpus to this file" type:"path"`
}

func (c *FetchCmd) Run() error {
	f, err := fetcher()
	if err != nil {
		return err
	}
	corpus, err := f.FromURL(context.Background(), c.URL)
	if err != nil {
		return err
	}
	if c.Out != "" {
		if err := codec.DumpFile(c.Out, corpus); err != nil {
			return err
		}
		fmt.Printf("Wrote %d documents to %s\n", corpus.Len(), c.Out)
		return nil
	}
	printCorpusInfo(corpus)
	return nil
}

// KeyCmd computes content keys. Given a plain text file it keys the
// text as a single-layer document; given a corpus file and --doc it
// recomputes the key of a stored document.
type KeyCmd struct {
	Path   string `arg:"" help:"Text file, or corpus file with --doc" type:"existingfile"`
	Doc    string `help:"Recompute the key of this document in a corpus file"`
	Layer  string `help:"Characters layer name for plain text input" default:"text"`
	Length int    `help:"Truncated key length" default:"4"`
}

func (c *KeyCmd) Run() error {
	doc, err := c.document()
	if err != nil {
		return err
	}
	full, err := model.FullKeyOf(doc)
	if err != nil {
		return err
	}
	key, err := model.KeyOf(doc, c.Length)
	if err != nil {
		return err
	}
	fmt.Printf("Key:  %s\n", key)
	fmt.Printf("Full: %s\n", full)
	return nil
}

func (c *KeyCmd) document() (*model.Document, error) {
	if c.Doc != "" {
		ld, err := loader(context.Background())
		if err != nil {
			return nil, err
		}
		corpus, err := ld.LoadFile(c.Path)
		if err != nil {
			return nil, err
		}
		return corpus.Get(c.Doc)
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, err
	}
	meta := model.Meta{
		c.Layer: {Name: c.Layer, Kind: model.KindCharacters, Data: model.DataNone},
	}
	if err := meta.Check(); err != nil {
		return nil, err
	}
	doc := model.NewDocument(meta)
	if err := doc.SetText(c.Layer, string(data)); err != nil {
		return nil, err
	}
	return doc, nil
}

// StoreImportCmd imports a corpus file into a SQLite store.
type StoreImportCmd struct {
	Corpus string `arg:"" help:"Corpus file to import" type:"existingfile"`
	DB     string `required:"" help:"Store database path" type:"path"`
}

func (c *StoreImportCmd) Run() error {
	ld, err := loader(context.Background())
	if err != nil {
		return err
	}
	corpus, err := ld.LoadFile(c.Corpus)
	if err != nil {
		return err
	}
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.ImportCorpus(corpus); err != nil {
		return err
	}
	n, err := s.Len()
	if err != nil {
		return err
	}
	logging.StoreImport(c.DB, corpus.Len())
	fmt.Printf("Imported %d documents; store now holds %d\n", corpus.Len(), n)
	return nil
}

// StoreExportCmd exports a SQLite store to a corpus file.
type StoreExportCmd struct {
	DB  string `arg:"" help:"Store database path" type:"existingfile"`
	Out string `required:"" help:"Output corpus file" type:"path"`
}

func (c *StoreExportCmd) Run() error {
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()
	corpus, err := s.ExportCorpus()
	if err != nil {
		return err
	}
	if err := codec.DumpFile(c.Out, corpus); err != nil {
		return err
	}
	fmt.Printf("Wrote %d documents to %s\n", corpus.Len(), c.Out)
	return nil
}

// StoreInfoCmd prints a store summary.
type StoreInfoCmd struct {
	DB string `arg:"" help:"Store database path" type:"existingfile"`
}

func (c *StoreInfoCmd) Run() error {
	s, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer s.Close()
	corpus, err := s.ExportCorpus()
	if err != nil {
		return err
	}
	printCorpusInfo(corpus)
	info := sqlite.GetInfo()
	fmt.Println()
	fmt.Printf("Driver: %s (%s)\n", info.DriverName, info.DriverType)
	fmt.Printf("Key length: %d\n", s.KeyLength())
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("strata version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("strata"),
		kong.Description("Layer-based stand-off annotation corpora"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	format := logging.FormatText
	if CLI.LogJSON {
		format = logging.FormatJSON
	}
	logging.InitLogger(logging.ParseLevel(CLI.LogLevel), format)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}

// Command cabinctl inspects and maintains the shared event document stored in
// the configured blob driver.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"cabincore/internal/blob"
	"cabincore/internal/docstore"
	"cabincore/internal/summary"
	"cabincore/pkg/domain"
)

const usage = `usage: cabinctl <command> [flags]

commands:
  dump                         print the document as JSON
  seed [-force]                initialise the document (-force resets it)
  restore -in path             replace the document with a JSON file
  summary [-format html|pdf] [-o path]
                               render the printable summary
`

var (
	exitFunc = os.Exit
	nowFunc  = func() time.Time { return time.Now().UTC() }
)

func main() {
	_ = godotenv.Load()
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	var run func(context.Context, *docstore.Client, []string, io.Writer, io.Writer) error
	switch cmd {
	case "dump":
		run = dump
	case "seed":
		run = seed
	case "restore":
		run = restore
	case "summary":
		run = renderSummary
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
		return 2
	}

	ctx := context.Background()
	store, err := blob.Open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "open blob store: %v\n", err)
		return 1
	}
	defer func() { _ = blob.Close(ctx, store) }()

	opts := []docstore.Option{docstore.WithClock(nowFunc)}
	if key := os.Getenv("CABINCORE_DOCUMENT_KEY"); key != "" {
		opts = append(opts, docstore.WithKey(key))
	}
	client := docstore.New(store, opts...)
	if err := run(ctx, client, rest, stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func dump(ctx context.Context, client *docstore.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap, err := client.FetchStrict(ctx)
	if err != nil {
		return err
	}
	raw, err := docstore.Encode(snap.Document)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", raw)
	return err
}

func seed(ctx context.Context, client *docstore.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "replace an existing document with the seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap, err := client.FetchStrict(ctx)
	if err != nil {
		return err
	}
	if *force {
		if snap, err = client.ReplaceDocument(ctx, domain.SeedDocument(nowFunc()), snap.Revision); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(stdout, "document %s at revision %s (%d users)\n", client.Key(), snap.Revision, len(snap.Document.Users))
	return err
}

func restore(ctx context.Context, client *docstore.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "JSON document to restore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}
	raw, err := os.ReadFile(filepath.Clean(*in))
	if err != nil {
		return err
	}
	doc, err := docstore.Decode(raw)
	if err != nil {
		return err
	}
	current, err := client.FetchStrict(ctx)
	if err != nil {
		return err
	}
	snap, err := client.ReplaceDocument(ctx, doc, current.Revision)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "restored %s at revision %s\n", client.Key(), snap.Revision)
	return err
}

func renderSummary(ctx context.Context, client *docstore.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "html", "output format: html or pdf")
	out := fs.String("o", "-", "output path, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap, err := client.FetchStrict(ctx)
	if err != nil {
		return err
	}
	report := summary.Build(snap.Document, domain.DefaultCatalog(), nowFunc())
	var buf bytes.Buffer
	switch *format {
	case "html":
		err = summary.RenderHTML(&buf, report)
	case "pdf":
		err = summary.RenderPDF(&buf, report, summary.PDFOptions{ShareURL: os.Getenv("CABINCORE_SHARE_URL")})
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		return err
	}
	if *out == "-" || *out == "" {
		_, err = stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(filepath.Clean(*out), buf.Bytes(), 0o600); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "wrote %s\n", *out)
	return err
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cabincore/pkg/domain"
)

func useFilesystem(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("CABINCORE_BLOB_DRIVER", "fs")
	t.Setenv("CABINCORE_BLOB_FS_ROOT", root)
	t.Setenv("CABINCORE_DOCUMENT_KEY", "")
	t.Setenv("CABINCORE_SHARE_URL", "")
	prev := nowFunc
	nowFunc = func() time.Time { return time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = prev })
	return root
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsageAndUnknownCommand(t *testing.T) {
	if code, _, stderr := runCLI(t); code != 2 || !strings.Contains(stderr, "usage: cabinctl") {
		t.Fatalf("expected usage, got %d %q", code, stderr)
	}
	if code, _, stderr := runCLI(t, "explode"); code != 2 || !strings.Contains(stderr, `unknown command "explode"`) {
		t.Fatalf("expected unknown command, got %d %q", code, stderr)
	}
	if code, stdout, _ := runCLI(t, "help"); code != 0 || !strings.Contains(stdout, "summary") {
		t.Fatalf("expected help, got %d %q", code, stdout)
	}
}

func TestSeedDumpRestore(t *testing.T) {
	useFilesystem(t)

	code, stdout, stderr := runCLI(t, "seed")
	if code != 0 || !strings.Contains(stdout, "database.json") || !strings.Contains(stdout, "(1 users)") {
		t.Fatalf("seed: %d %q %q", code, stdout, stderr)
	}

	doc := domain.SeedDocument(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	doc.Users = append(doc.Users, domain.User{ID: "u-2", Nome: "Bea", Cognome: "Valle"})
	doc.Bookings = append(doc.Bookings, domain.Booking{ID: "b-1", BedID: "B2", Night: "2026-02-21", UserID: "u-2"})
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(t.TempDir(), "restore.json")
	if err := os.WriteFile(in, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	if code, stdout, stderr := runCLI(t, "restore", "-in", in); code != 0 || !strings.Contains(stdout, "restored") {
		t.Fatalf("restore: %d %q %q", code, stdout, stderr)
	}
	if code, _, stderr := runCLI(t, "restore"); code != 1 || !strings.Contains(stderr, "-in is required") {
		t.Fatalf("expected missing -in error, got %d %q", code, stderr)
	}

	code, stdout, _ = runCLI(t, "dump")
	if code != 0 {
		t.Fatalf("dump exit %d", code)
	}
	var dumped domain.Document
	if err := json.Unmarshal([]byte(stdout), &dumped); err != nil {
		t.Fatalf("dump output is not a document: %v", err)
	}
	if len(dumped.Users) != 2 || len(dumped.Bookings) != 1 {
		t.Fatalf("unexpected dump %+v", dumped)
	}

	if code, stdout, _ := runCLI(t, "seed", "-force"); code != 0 || !strings.Contains(stdout, "(1 users)") {
		t.Fatalf("forced seed: %d %q", code, stdout)
	}
}

func TestSummaryFormats(t *testing.T) {
	useFilesystem(t)

	code, stdout, stderr := runCLI(t, "summary")
	if code != 0 || !strings.Contains(stdout, "Riepilogo Weekend in Montagna") || !strings.Contains(stdout, "Manuel Berno") {
		t.Fatalf("html summary: %d %q", code, stderr)
	}

	t.Setenv("CABINCORE_SHARE_URL", "https://example.com/weekend")
	out := filepath.Join(t.TempDir(), "riepilogo.pdf")
	if code, stdout, stderr := runCLI(t, "summary", "-format", "pdf", "-o", out); code != 0 || !strings.Contains(stdout, "wrote") {
		t.Fatalf("pdf summary: %d %q %q", code, stdout, stderr)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		t.Fatalf("output is not a pdf")
	}

	if code, _, stderr := runCLI(t, "summary", "-format", "odt"); code != 1 || !strings.Contains(stderr, "unsupported format") {
		t.Fatalf("expected format error, got %d %q", code, stderr)
	}
}

package entrystore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/domain"
	"lukechampine.com/blake3"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "output", "output.xml"), newLogger())
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func expectedHashID(text string) string {
	h := blake3.New(16, nil)
	h.Write([]byte(text))
	return "ID-" + hex.EncodeToString(h.Sum(nil))[:8]
}

func TestEnsureDocumentCreatesEmptyRoot(t *testing.T) {
	s := newStore(t)
	if err := s.EnsureDocument(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<transcriptions>\n</transcriptions>\n"
	if got := string(readFile(t, s.Path())); got != want {
		t.Fatalf("unexpected document:\n%s", got)
	}
}

func TestEnsureDocumentIsIdempotent(t *testing.T) {
	s := newStore(t)
	if err := s.EnsureDocument(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "keep me"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := readFile(t, s.Path())
	if err := s.EnsureDocument(); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if !bytes.Equal(before, readFile(t, s.Path())) {
		t.Fatal("second ensure must not touch an existing document")
	}
}

func TestHashIDIsDeterministic(t *testing.T) {
	s := newStore(t)
	first, err := s.AddEntry(context.Background(), NewEntry{Transcription: "same words", Date: "not a date"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := s.AddEntry(context.Background(), NewEntry{Transcription: "same words"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected identical ids, got %s and %s", first.ID, second.ID)
	}
	if first.HasDateAsID {
		t.Fatal("hash ids must not be flagged as dates")
	}
}

func TestHelloWorldScenario(t *testing.T) {
	s := newStore(t)
	entry, err := s.AddEntry(context.Background(), NewEntry{Transcription: "hello world", Language: "en"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	want := expectedHashID("hello world")
	if entry.ID != want || len(entry.ID) != len("ID-")+8 {
		t.Fatalf("expected %s, got %s", want, entry.ID)
	}
	doc := string(readFile(t, s.Path()))
	if !strings.Contains(doc, `<entry id="`+want+`" has_date_as_id="0">`) {
		t.Fatalf("entry not persisted with hash provenance:\n%s", doc)
	}
}

func TestDateIDIsVerbatim(t *testing.T) {
	for _, date := range []string{
		"2024-05-01T10:30:00",
		"2024-05-01T10:30:00.123456",
		"2024-05-01T10:30:00+02:00",
		"2024-05-01T10:30:00Z",
		"2024-05-01 10:30:00",
		"2024-05-01",
	} {
		t.Run(date, func(t *testing.T) {
			s := newStore(t)
			entry, err := s.AddEntry(context.Background(), NewEntry{Transcription: "note", Date: date})
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if entry.ID != date || !entry.HasDateAsID {
				t.Fatalf("expected date id %s, got %+v", date, entry)
			}
			doc := string(readFile(t, s.Path()))
			if !strings.Contains(doc, `id="`+date+`" has_date_as_id="1"`) {
				t.Fatalf("date provenance missing:\n%s", doc)
			}
		})
	}
}

func TestAddEntryWithoutIdentityLeavesDocumentUnchanged(t *testing.T) {
	s := newStore(t)
	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "first", Date: "2024-01-01"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := readFile(t, s.Path())

	for _, text := range []string{"", "   \n\t"} {
		_, err := s.AddEntry(context.Background(), NewEntry{Transcription: text, Date: "yesterday"})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	}
	if !bytes.Equal(before, readFile(t, s.Path())) {
		t.Fatal("document changed after failed add")
	}
}

func TestTagsRoundTripInOrder(t *testing.T) {
	s := newStore(t)
	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "tagged", Tags: []string{"a", "b"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	tags := entries[0].Tags
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("expected [a b], got %v", tags)
	}
}

func TestDocumentLayout(t *testing.T) {
	s := newStore(t)
	_, err := s.AddEntry(context.Background(), NewEntry{
		Transcription: "  Tom & Jerry <3  ",
		Date:          "2024-05-01T10:30:00",
		Summary:       "cartoon",
		Tags:          []string{"tv", "kids"},
		Language:      "en",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?>
<transcriptions>
    <entry id="2024-05-01T10:30:00" has_date_as_id="1">
        <transcription>
            Tom &amp; Jerry &lt;3
        </transcription>
        <summary>cartoon</summary>
        <tags>
            <tag>tv</tag>
            <tag>kids</tag>
        </tags>
        <language>en</language>
    </entry>
</transcriptions>
`
	if got := string(readFile(t, s.Path())); got != want {
		t.Fatalf("unexpected layout:\n%s", got)
	}

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if entries[0].Transcription != "Tom & Jerry <3" {
		t.Fatalf("unexpected transcription %q", entries[0].Transcription)
	}
}

func TestCorruptDocumentIsBackedUpAndReplaced(t *testing.T) {
	s := newStore(t)
	s.clock = func() time.Time { return time.Unix(1700000000, 0) }
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	corrupt := []byte("<transcriptions><entry id=")
	if err := os.WriteFile(s.Path(), corrupt, 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}

	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "after crash"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Transcription != "after crash" {
		t.Fatalf("expected single fresh entry, got %+v", entries)
	}
	backup := readFile(t, fmt.Sprintf("%s.corrupt-%d", s.Path(), 1700000000))
	if !bytes.Equal(backup, corrupt) {
		t.Fatal("corrupt content not preserved")
	}
}

func TestEmptyDocumentStartsFresh(t *testing.T) {
	s := newStore(t)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(s.Path(), nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "x"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	entries, err := s.Entries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %v (err=%v)", entries, err)
	}
}

func TestIOFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "output")
	if err := os.WriteFile(blocker, []byte("a file, not a dir"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	s := New(filepath.Join(blocker, "output.xml"), newLogger())

	if err := s.EnsureDocument(); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected io failure from ensure, got %v", err)
	}
	if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: "x"}); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected io failure from add, got %v", err)
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	s := newStore(t)
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddEntry(context.Background(), NewEntry{Transcription: fmt.Sprintf("memo %d", i)}); err != nil {
				t.Errorf("add %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(entries))
	}
}

func TestAssignID(t *testing.T) {
	if _, _, err := AssignID("", ""); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	id, dated, err := AssignID("2024-13-45", "text")
	if err != nil || dated || !strings.HasPrefix(id, "ID-") {
		t.Fatalf("invalid calendar date must fall back to hash, got %s %v %v", id, dated, err)
	}
}

func TestIsISODateForms(t *testing.T) {
	valid := []string{
		"2024-01-15",
		"2024-01-15T10",
		"2024-01-15T10:30",
		"2024-01-15T10:30:00",
		"2024-01-15T10:30:00.123456",
		"2024-01-15T10:30:00Z",
		"2024-01-15T10:30:00+01:00",
		"2024-01-15T10:30:00+0100",
		"2024-01-15T10:30:00.5-0500",
		"2024-01-15 10:30:00",
		"2024-01-15 10",
		"20240115",
		"20240115T1030",
		"20240115T103000",
	}
	for _, s := range valid {
		if !IsISODate(s) {
			t.Errorf("expected %q to be accepted", s)
		}
	}
	invalid := []string{"", "yesterday", "2024-13-01", "2024-01-15T25", "15.01.2024", "20241301"}
	for _, s := range invalid {
		if IsISODate(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestOffsetDateBecomesID(t *testing.T) {
	id, dated, err := AssignID("2024-01-15T10:30:00+0100", "text")
	if err != nil || !dated || id != "2024-01-15T10:30:00+0100" {
		t.Fatalf("expected verbatim date id, got %s %v %v", id, dated, err)
	}
}

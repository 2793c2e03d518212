package entrystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/domain"
	"lukechampine.com/blake3"
)

// isoLayouts are the ISO-8601 shapes accepted as date identifiers.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02 15",
	"2006-01-02",
	"20060102T150405.999999999Z07:00",
	"20060102T150405.999999999",
	"20060102T1504",
	"20060102",
}

// NewEntry carries the caller-supplied fields of an entry.
type NewEntry struct {
	Transcription string
	Date          string
	Summary       string
	Tags          []string
	Language      string
}

// Store owns the persisted transcript document. Load-modify-rewrite cycles
// are serialized per Store.
type Store struct {
	path  string
	log   *slog.Logger
	mu    sync.Mutex
	clock func() time.Time
}

func New(path string, log *slog.Logger) *Store {
	return &Store{
		path:  path,
		log:   log.With(slog.String("component", "entry-store")),
		clock: time.Now,
	}
}

func (s *Store) Path() string {
	return s.path
}

// EnsureDocument creates the parent directory and an empty document when none exists.
func (s *Store) EnsureDocument() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return s.ioFailure("stat document", err)
	}
	if err := s.rewrite(nil); err != nil {
		return err
	}
	s.log.Info("created transcript document", slog.String("path", s.path))
	return nil
}

// AddEntry assigns an identifier and appends one entry to the document.
func (s *Store) AddEntry(ctx context.Context, in NewEntry) (Entry, error) {
	id, dated, err := AssignID(in.Date, in.Transcription)
	if err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            id,
		HasDateAsID:   dated,
		Transcription: strings.TrimSpace(in.Transcription),
		Summary:       in.Summary,
		Tags:          append([]string(nil), in.Tags...),
		Language:      in.Language,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDir(); err != nil {
		return Entry{}, err
	}
	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, entry)
	if err := s.rewrite(entries); err != nil {
		return Entry{}, err
	}

	s.log.Info("entry added",
		slog.String("id", entry.ID),
		slog.Bool("has_date_as_id", entry.HasDateAsID),
		slog.Int("entries", len(entries)))
	return entry, nil
}

// Entries returns every entry in document order. A missing document has none.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, s.ioFailure("read document", err)
	}
	entries, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", s.path, err)
	}
	return entries, nil
}

// AssignID returns date verbatim when it is valid ISO-8601, otherwise an
// "ID-" content hash of the transcription. It fails with domain.ErrConfiguration
// when neither is available.
func AssignID(date, transcription string) (string, bool, error) {
	if IsISODate(date) {
		return date, true, nil
	}
	if strings.TrimSpace(transcription) == "" {
		return "", false, fmt.Errorf("%w: no valid date and empty transcription", domain.ErrConfiguration)
	}
	return "ID-" + ContentHash(transcription), false, nil
}

// ContentHash is the first 8 hex characters of the 128-bit BLAKE3 digest of text.
func ContentHash(text string) string {
	h := blake3.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func IsISODate(s string) bool {
	if s == "" {
		return false
	}
	for _, layout := range isoLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// load reads the current entries. Missing, empty or unparsable documents load
// as empty; unparsable content is first copied aside.
func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, s.ioFailure("read document", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		s.log.Warn("transcript document empty, starting fresh", slog.String("path", s.path))
		return nil, nil
	}

	entries, err := parseDocument(data)
	if err == nil {
		return entries, nil
	}

	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.clock().Unix())
	if werr := os.WriteFile(backup, data, 0o644); werr != nil {
		return nil, s.ioFailure("back up corrupt document", werr)
	}
	s.log.Warn("transcript document unreadable, starting fresh",
		slog.String("path", s.path),
		slog.String("backup", backup),
		slog.String("error", err.Error()))
	return nil, nil
}

// rewrite replaces the whole document through a temp file and rename.
func (s *Store) rewrite(entries []Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.ioFailure("create temp document", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeDocument(tmp, entries); err != nil {
		tmp.Close()
		return s.ioFailure("write document", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return s.ioFailure("sync document", err)
	}
	if err := tmp.Close(); err != nil {
		return s.ioFailure("close document", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return s.ioFailure("chmod document", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return s.ioFailure("replace document", err)
	}
	return nil
}

func (s *Store) ensureDir() error {
	dir := filepath.Dir(s.path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.ioFailure("create document dir", err)
	}
	return nil
}

func (s *Store) ioFailure(op string, err error) error {
	s.log.Error("entry store failure", slog.String("op", op), slog.String("path", s.path), slog.String("error", err.Error()))
	return fmt.Errorf("%w: %s %s: %w", domain.ErrIO, op, s.path, err)
}

package protocol

import "time"

// TranscriptSaved announces a transcript persisted to the entry document.
type TranscriptSaved struct {
	RunID       string    `json:"run_id"`
	EntryID     string    `json:"entry_id"`
	HasDateAsID bool      `json:"has_date_as_id"`
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Tags        []string  `json:"tags,omitempty"`
	Document    string    `json:"document"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptSaved = "scribe.transcript.saved"
)

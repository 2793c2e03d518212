package entrystore

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	indent    = "    "
)

// Entry is a persisted transcript record.
type Entry struct {
	ID            string
	HasDateAsID   bool
	Transcription string
	Summary       string
	Tags          []string
	Language      string
}

type xmlDocument struct {
	XMLName xml.Name   `xml:"transcriptions"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	ID            string  `xml:"id,attr"`
	HasDateAsID   string  `xml:"has_date_as_id,attr"`
	Transcription string  `xml:"transcription"`
	Summary       string  `xml:"summary"`
	Tags          xmlTags `xml:"tags"`
	Language      string  `xml:"language"`
}

type xmlTags struct {
	Tags []string `xml:"tag"`
}

func (e xmlEntry) toEntry() Entry {
	return Entry{
		ID:            e.ID,
		HasDateAsID:   e.HasDateAsID == "1",
		Transcription: strings.TrimSpace(e.Transcription),
		Summary:       e.Summary,
		Tags:          append([]string(nil), e.Tags.Tags...),
		Language:      e.Language,
	}
}

// parseDocument decodes a document. Empty or malformed input is an error.
func parseDocument(data []byte) ([]Entry, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	entries := make([]Entry, len(doc.Entries))
	for i, e := range doc.Entries {
		entries[i] = e.toEntry()
	}
	return entries, nil
}

// writeDocument serializes entries with a UTF-8 declaration and four spaces
// per nesting level. Non-empty transcriptions sit on their own line.
func writeDocument(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xmlHeader)
	bw.WriteString("<transcriptions>\n")
	for _, e := range entries {
		flag := "0"
		if e.HasDateAsID {
			flag = "1"
		}
		bw.WriteString(indent + `<entry id="` + escape(e.ID) + `" has_date_as_id="` + flag + `">` + "\n")

		text := strings.TrimSpace(e.Transcription)
		if text == "" {
			bw.WriteString(indent + indent + "<transcription></transcription>\n")
		} else {
			bw.WriteString(indent + indent + "<transcription>\n")
			bw.WriteString(indent + indent + indent + escape(text) + "\n")
			bw.WriteString(indent + indent + "</transcription>\n")
		}

		bw.WriteString(indent + indent + "<summary>" + escape(e.Summary) + "</summary>\n")

		if len(e.Tags) == 0 {
			bw.WriteString(indent + indent + "<tags></tags>\n")
		} else {
			bw.WriteString(indent + indent + "<tags>\n")
			for _, tag := range e.Tags {
				bw.WriteString(indent + indent + indent + "<tag>" + escape(tag) + "</tag>\n")
			}
			bw.WriteString(indent + indent + "</tags>\n")
		}

		bw.WriteString(indent + indent + "<language>" + escape(e.Language) + "</language>\n")
		bw.WriteString(indent + "</entry>\n")
	}
	bw.WriteString("</transcriptions>\n")
	return bw.Flush()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

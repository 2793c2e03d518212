package stt

import (
	"context"
	"path/filepath"
)

// MockRecognizer returns canned segments and records each request.
type MockRecognizer struct {
	segments []RawSegment
	calls    []RecognizeRequest
}

// NewMockRecognizer returns segments verbatim. With none given it reports a
// single segment naming the audio file.
func NewMockRecognizer(segments ...RawSegment) *MockRecognizer {
	return &MockRecognizer{segments: segments}
}

func (m *MockRecognizer) Recognize(_ context.Context, req RecognizeRequest) ([]RawSegment, error) {
	m.calls = append(m.calls, req)
	if len(m.segments) == 0 {
		return []RawSegment{{T0: 0, T1: 100, Text: " [mock transcript of " + filepath.Base(req.AudioPath) + "] "}}, nil
	}
	return append([]RawSegment(nil), m.segments...), nil
}

// Calls returns the requests seen so far.
func (m *MockRecognizer) Calls() []RecognizeRequest {
	return m.calls
}

package asr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// StreamResult is the outcome of transcribing one audio batch: the text
// recognized in the batch and any full sentences that completed with it.
type StreamResult struct {
	Part      string
	Sentences []string
}

// StreamSession accumulates transcribed text for one user and cuts it into
// sentences. A sentence completes at terminal punctuation; the remainder
// stays pending until the next batch or a flush.
type StreamSession struct {
	transcriber Transcriber

	mu      sync.Mutex
	pending string
}

func newStreamSession(transcriber Transcriber) *StreamSession {
	return &StreamSession{transcriber: transcriber}
}

// PushBatch transcribes one PCM batch and folds the text into the pending
// sentence buffer.
func (s *StreamSession) PushBatch(ctx context.Context, pcm []byte) (StreamResult, error) {
	part, err := s.transcriber.TranscribePCM(ctx, pcm)
	if err != nil {
		return StreamResult{}, fmt.Errorf("failed to transcribe batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if part != "" {
		if s.pending != "" && !strings.HasSuffix(s.pending, " ") {
			s.pending += " "
		}
		s.pending += part
	}

	sentences, rest := SplitSentences(s.pending)
	s.pending = rest

	return StreamResult{Part: part, Sentences: sentences}, nil
}

// Flush returns the pending text as a final sentence and clears the buffer.
func (s *StreamSession) Flush() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest := strings.TrimSpace(s.pending)
	s.pending = ""
	return rest
}

// SplitSentences cuts text at terminal punctuation. It returns the complete
// sentences and the trailing fragment that has not been terminated yet.
func SplitSentences(text string) ([]string, string) {
	var sentences []string
	start := 0
	runes := []rune(text)

	for i, r := range runes {
		if !isSentenceTerminal(r) {
			continue
		}
		// Swallow runs of terminals like "?!" or "...".
		if i+1 < len(runes) && isSentenceTerminal(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}

	return sentences, strings.TrimLeftFunc(string(runes[start:]), unicode.IsSpace)
}

func isSentenceTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// StreamManager tracks one streaming session per user.
type StreamManager struct {
	transcriber Transcriber

	mu       sync.Mutex
	sessions map[string]*StreamSession
}

func NewStreamManager(transcriber Transcriber) *StreamManager {
	return &StreamManager{
		transcriber: transcriber,
		sessions:    make(map[string]*StreamSession),
	}
}

// Start opens a fresh session for the user, replacing any previous one.
func (m *StreamManager) Start(user string) *StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := newStreamSession(m.transcriber)
	m.sessions[user] = session
	slog.Info("Started audio stream session", "user", user)
	return session
}

// Get returns the user's active session, if any.
func (m *StreamManager) Get(user string) (*StreamSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[user]
	return session, ok
}

// Stop ends the user's session and returns any pending text.
func (m *StreamManager) Stop(user string) string {
	m.mu.Lock()
	session, ok := m.sessions[user]
	delete(m.sessions, user)
	m.mu.Unlock()

	if !ok {
		return ""
	}
	slog.Info("Stopped audio stream session", "user", user)
	return session.Flush()
}

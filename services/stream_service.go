package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/curatorlabs/curator/asr"
)

// StreamCallbacks receive recognition output while audio is streaming in.
type StreamCallbacks struct {
	OnPart     func(text string)
	OnSentence func(text string)
}

// StreamService manages live audio transcription sessions, one per user. It
// runs on either a batch transcriber, where every incoming batch is
// transcribed on its own, or a Lecture Translator deployment, which streams
// hypotheses back asynchronously.
type StreamService struct {
	manager *asr.StreamManager
	lecture *asr.LectureTranslatorClient
	timeout *StreamTimeoutService

	mu       sync.Mutex
	sessions map[string]*streamSession
}

type streamSession struct {
	callbacks StreamCallbacks

	// batch path
	batch *asr.StreamSession

	// lecture translator path
	remote  *asr.LectureSession
	pending string
	started bool
}

func NewStreamService(manager *asr.StreamManager, lecture *asr.LectureTranslatorClient) *StreamService {
	s := &StreamService{
		manager:  manager,
		lecture:  lecture,
		sessions: make(map[string]*streamSession),
	}
	s.timeout = NewStreamTimeoutService(DefaultStreamIdleLimit, func(user string) {
		s.Stop(context.Background(), user)
	})
	return s
}

// Start opens a streaming session for the user, replacing any previous one.
func (s *StreamService) Start(ctx context.Context, user string, callbacks StreamCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[user]; ok && old.remote != nil {
		old.remote.Close(ctx)
	}

	session := &streamSession{callbacks: callbacks}

	if s.lecture != nil {
		remote, err := s.lecture.StartSession(ctx)
		if err != nil {
			return fmt.Errorf("failed to start recognition session: %w", err)
		}
		session.remote = remote
		go s.relayRemote(user, session)
	} else if s.manager != nil {
		session.batch = s.manager.Start(user)
	} else {
		return fmt.Errorf("no streaming transcriber configured")
	}

	s.sessions[user] = session
	s.timeout.Touch(user)
	slog.Info("Audio streaming started", "user", user, "remote", session.remote != nil)
	return nil
}

// PushBatch feeds one PCM batch into the user's session.
func (s *StreamService) PushBatch(ctx context.Context, user string, pcm []byte) error {
	s.mu.Lock()
	session, ok := s.sessions[user]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active streaming session for %s", user)
	}
	s.timeout.Touch(user)

	if session.remote != nil {
		start := !session.started
		session.started = true
		return session.remote.SendPCM(ctx, pcm, start, false)
	}

	result, err := session.batch.PushBatch(ctx, pcm)
	if err != nil {
		return err
	}
	if result.Part != "" && session.callbacks.OnPart != nil {
		session.callbacks.OnPart(result.Part)
	}
	for _, sentence := range result.Sentences {
		if session.callbacks.OnSentence != nil {
			session.callbacks.OnSentence(sentence)
		}
	}
	return nil
}

// Stop ends the user's session. Pending text is flushed as a last sentence.
func (s *StreamService) Stop(ctx context.Context, user string) {
	s.mu.Lock()
	session, ok := s.sessions[user]
	delete(s.sessions, user)
	s.mu.Unlock()
	s.timeout.Remove(user)
	if !ok {
		return
	}

	if session.remote != nil {
		// Nudge the recognizer to finalize, then close. Remaining events
		// drain through relayRemote until the channel closes.
		if err := session.remote.Flush(ctx); err != nil {
			slog.Warn("Failed to flush recognition session", "user", user, "error", err)
		}
		session.remote.Close(ctx)
		return
	}

	if rest := s.manager.Stop(user); rest != "" && session.callbacks.OnSentence != nil {
		session.callbacks.OnSentence(rest)
	}
}

// relayRemote forwards Lecture Translator hypotheses to the callbacks,
// cutting finalized text into sentences.
func (s *StreamService) relayRemote(user string, session *streamSession) {
	for event := range session.remote.Text {
		if !event.Final {
			if session.callbacks.OnPart != nil {
				session.callbacks.OnPart(event.Text)
			}
			continue
		}

		session.pending += event.Text
		sentences, rest := asr.SplitSentences(session.pending)
		session.pending = rest
		for _, sentence := range sentences {
			if session.callbacks.OnSentence != nil {
				session.callbacks.OnSentence(sentence)
			}
		}
	}

	if session.pending != "" && session.callbacks.OnSentence != nil {
		session.callbacks.OnSentence(session.pending)
		session.pending = ""
	}
	slog.Info("Audio streaming relay closed", "user", user)
}

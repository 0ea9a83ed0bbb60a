package asr

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LectureTranslatorClient talks to a Lecture Translator deployment, a cloud
// speech recognizer that accepts streamed PCM chunks over HTTP and delivers
// hypotheses back over a server-sent events channel.
type LectureTranslatorClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewLectureTranslatorClient(baseURL, token string) *LectureTranslatorClient {
	return &LectureTranslatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type sessionStartResponse struct {
	SessionID string `json:"session_id"`
}

type audioChunkRequest struct {
	PCMBase64 string `json:"b64_enc_pcm_s16le"`
	Start     bool   `json:"start,omitempty"`
	End       bool   `json:"end,omitempty"`
}

type TextEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// LectureSession is one live recognition session. Text hypotheses arrive on
// Text until the session is closed or the server ends the event stream.
type LectureSession struct {
	client    *LectureTranslatorClient
	sessionID string
	cancel    context.CancelFunc

	Text chan TextEvent

	closeOnce sync.Once
}

// StartSession creates a recognition session with the default recognizer and
// begins reading its event stream.
func (l *LectureTranslatorClient) StartSession(ctx context.Context) (*LectureSession, error) {
	body, err := json.Marshal(map[string]string{"asr": "default"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/api/session", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lecture translator API error: %d - %s", resp.StatusCode, string(payload))
	}

	var started sessionStartResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	session := &LectureSession{
		client:    l,
		sessionID: started.SessionID,
		cancel:    cancel,
		Text:      make(chan TextEvent, 16),
	}

	go session.readEvents(streamCtx)
	go session.keepAlive(streamCtx)

	slog.Info("Started lecture translator session", "session_id", started.SessionID)
	return session, nil
}

// SendPCM pushes one chunk of raw 16-bit PCM audio into the session.
func (s *LectureSession) SendPCM(ctx context.Context, pcm []byte, start, end bool) error {
	chunk := audioChunkRequest{
		PCMBase64: base64.StdEncoding.EncodeToString(pcm),
		Start:     start,
		End:       end,
	}
	body, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal audio chunk: %w", err)
	}

	url := fmt.Sprintf("%s/api/session/%s/audio", s.client.baseURL, s.sessionID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.client.token)

	resp, err := s.client.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("lecture translator API error: %d - %s", resp.StatusCode, string(payload))
	}
	return nil
}

// Flush pushes a short burst of low amplitude noise. The recognizer treats
// it as trailing silence and finalizes whatever hypothesis is pending.
func (s *LectureSession) Flush(ctx context.Context) error {
	return s.SendPCM(ctx, whiteNoise(SampleRate/2), false, false)
}

// Close ends the session and stops the event reader.
func (s *LectureSession) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.SendPCM(ctx, nil, false, true)
		s.cancel()
	})
	return err
}

func (s *LectureSession) readEvents(ctx context.Context) {
	defer close(s.Text)

	url := fmt.Sprintf("%s/api/session/%s/events", s.client.baseURL, s.sessionID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		slog.Error("Failed to create event stream request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.client.token)

	// The SSE stream outlives the 60s request timeout, so it uses a bare
	// client without one.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		slog.Error("Failed to open event stream", "error", err, "session_id", s.sessionID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Event stream rejected", "status", resp.StatusCode, "session_id", s.sessionID)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Comment lines are keepalives, blank lines delimit events.
			continue
		}

		var event TextEvent
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			slog.Warn("Skipping malformed event", "error", err, "session_id", s.sessionID)
			continue
		}
		if event.Text == "" {
			continue
		}

		select {
		case s.Text <- event:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Error("Event stream read failed", "error", err, "session_id", s.sessionID)
	}
}

func (s *LectureSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SendPCM(ctx, whiteNoise(SampleRate/10), false, false); err != nil {
				slog.Warn("Keepalive chunk failed", "error", err, "session_id", s.sessionID)
			}
		case <-ctx.Done():
			return
		}
	}
}

// whiteNoise returns n samples of low amplitude 16-bit noise.
func whiteNoise(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < len(pcm); i += 2 {
		v := int16(rand.Intn(64) - 32)
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}
	return pcm
}

package asr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		sentences []string
		rest      string
	}{
		{
			name:      "Empty input",
			text:      "",
			sentences: nil,
			rest:      "",
		},
		{
			name:      "Unterminated fragment",
			text:      "the cell membrane",
			sentences: nil,
			rest:      "the cell membrane",
		},
		{
			name:      "Single sentence",
			text:      "The cell divides.",
			sentences: []string{"The cell divides."},
			rest:      "",
		},
		{
			name:      "Sentence plus fragment",
			text:      "The cell divides. Then the",
			sentences: []string{"The cell divides."},
			rest:      "Then the",
		},
		{
			name:      "Multiple sentences",
			text:      "One. Two! Three?",
			sentences: []string{"One.", "Two!", "Three?"},
			rest:      "",
		},
		{
			name:      "Terminal run swallowed",
			text:      "Really?! Yes.",
			sentences: []string{"Really?!", "Yes."},
			rest:      "",
		},
		{
			name:      "Ellipsis",
			text:      "Wait... go on",
			sentences: []string{"Wait..."},
			rest:      "go on",
		},
		{
			name:      "Unicode ellipsis",
			text:      "Hmm… sure.",
			sentences: []string{"Hmm…", "sure."},
			rest:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences, rest := SplitSentences(tt.text)
			assert.Equal(t, tt.sentences, sentences)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

// scriptedTranscriber replays canned transcriptions in order.
type scriptedTranscriber struct {
	outputs []string
	calls   int
}

func (s *scriptedTranscriber) TranscribePCM(ctx context.Context, pcm []byte) (string, error) {
	if s.calls >= len(s.outputs) {
		return "", nil
	}
	out := s.outputs[s.calls]
	s.calls++
	return out, nil
}

func (s *scriptedTranscriber) Description() string { return "scripted" }

func TestStreamSessionAccumulatesSentences(t *testing.T) {
	transcriber := &scriptedTranscriber{outputs: []string{
		"the cell",
		"divides. Then it",
		"grows.",
	}}
	session := newStreamSession(transcriber)
	ctx := context.Background()

	result, err := session.PushBatch(ctx, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "the cell", result.Part)
	assert.Empty(t, result.Sentences)

	result, err = session.PushBatch(ctx, []byte{2})
	require.NoError(t, err)
	assert.Equal(t, []string{"the cell divides."}, result.Sentences)

	result, err = session.PushBatch(ctx, []byte{3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Then it grows."}, result.Sentences)

	assert.Equal(t, "", session.Flush())
}

func TestStreamSessionFlushReturnsPending(t *testing.T) {
	transcriber := &scriptedTranscriber{outputs: []string{"an unfinished thought"}}
	session := newStreamSession(transcriber)

	_, err := session.PushBatch(context.Background(), []byte{1})
	require.NoError(t, err)

	assert.Equal(t, "an unfinished thought", session.Flush())
	assert.Equal(t, "", session.Flush())
}

func TestStreamManagerLifecycle(t *testing.T) {
	manager := NewStreamManager(&scriptedTranscriber{outputs: []string{"pending text"}})

	_, ok := manager.Get("alice")
	assert.False(t, ok)

	session := manager.Start("alice")
	got, ok := manager.Get("alice")
	require.True(t, ok)
	assert.Same(t, session, got)

	_, err := session.PushBatch(context.Background(), []byte{1})
	require.NoError(t, err)

	assert.Equal(t, "pending text", manager.Stop("alice"))
	_, ok = manager.Get("alice")
	assert.False(t, ok)

	// Stopping an unknown user is a no-op.
	assert.Equal(t, "", manager.Stop("alice"))
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := EncodeWAV(pcm, SampleRate)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, pcm, wav[44:])
}

func TestPCMDuration(t *testing.T) {
	// One second of 16 kHz 16-bit mono audio is 32000 bytes.
	assert.Equal(t, time.Second, PCMDuration(2*SampleRate))
	assert.Equal(t, 500*time.Millisecond, PCMDuration(SampleRate))
	assert.Equal(t, time.Duration(0), PCMDuration(0))
}

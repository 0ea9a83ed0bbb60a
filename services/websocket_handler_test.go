package services

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/curatorlabs/curator/websocket"
)

func newTestClient() *ws.Client {
	return &ws.Client{
		Send:      make(chan []byte, 8),
		User:      "tester",
		SessionID: "test-session",
	}
}

// receiveEvent drains one queued event from the client without a socket.
func receiveEvent(t *testing.T, client *ws.Client) ws.Event {
	t.Helper()
	select {
	case raw := <-client.Send:
		var event ws.Event
		require.NoError(t, json.Unmarshal(raw, &event))
		return event
	default:
		t.Fatal("no event queued for client")
		return ws.Event{}
	}
}

func TestStreamBatchRejectsUnsupportedTranscoding(t *testing.T) {
	handler := NewWebSocketHandler(&fakeUserResolver{}, nil, nil, NewStreamService(nil, nil))
	client := newTestClient()

	payload, err := json.Marshal(map[string]any{
		"user":        "tester",
		"b64_pcm":     base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0}),
		"transcoding": "opus",
	})
	require.NoError(t, err)

	handler.HandleEvent(client, ws.Event{Event: EventSubmitStreamBatch, Data: payload})

	event := receiveEvent(t, client)
	assert.Equal(t, EventActionError, event.Event)

	var body map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &body))
	assert.Contains(t, body["error"], "unsupported transcoding: opus")
}

func TestStreamBatchAcceptsPCMTranscoding(t *testing.T) {
	handler := NewWebSocketHandler(&fakeUserResolver{}, nil, nil, NewStreamService(nil, nil))
	client := newTestClient()

	// A declared PCM encoding passes validation; with no session started the
	// batch fails later, on session lookup.
	payload, err := json.Marshal(map[string]any{
		"user":        "tester",
		"b64_pcm":     base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0}),
		"transcoding": "pcm_s16le",
	})
	require.NoError(t, err)

	handler.HandleEvent(client, ws.Event{Event: EventSubmitStreamBatch, Data: payload})

	event := receiveEvent(t, client)
	assert.Equal(t, EventActionError, event.Event)

	var body map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &body))
	assert.Contains(t, body["error"], "no active streaming session")
}

func TestStreamBatchRejectsBadBase64(t *testing.T) {
	handler := NewWebSocketHandler(&fakeUserResolver{}, nil, nil, NewStreamService(nil, nil))
	client := newTestClient()

	payload, err := json.Marshal(map[string]any{
		"user":    "tester",
		"b64_pcm": "not base64!!!",
	})
	require.NoError(t, err)

	handler.HandleEvent(client, ws.Event{Event: EventSubmitStreamBatch, Data: payload})

	event := receiveEvent(t, client)
	assert.Equal(t, EventActionError, event.Event)
}

package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/curatorlabs/curator/asr"
	"github.com/curatorlabs/curator/assistant"
	"github.com/curatorlabs/curator/models"
	ws "github.com/curatorlabs/curator/websocket"
)

// Client-to-server events.
const (
	EventSubmitAction         = "submit_action"
	EventSubmitActionFile     = "submit_action_file"
	EventStartAudioStreaming  = "start_audio_streaming"
	EventSubmitStreamBatch    = "submit_stream_batch"
	EventStopAudioStreaming   = "stop_audio_streaming"
	EventExportCollection     = "export_anki_collection"
	EventImportCollection     = "import_anki_collection"
	EventResetCollection      = "reset_anki_collection"
	EventNewConversation      = "new_conversation"
)

// Server-to-client events.
const (
	EventActionProgress        = "action_progress"
	EventActionResult          = "action_result"
	EventActionError           = "action_error"
	EventStreamStartAck        = "acknowledged_stream_start"
	EventStreamedSentencePart  = "streamed_sentence_part"
	EventCompleteSentence      = "received_complete_sentence"
	EventCollectionExported    = "anki_collection_exported"
	EventCollectionImported    = "anki_collection_imported"
	EventCollectionReset       = "anki_collection_reset"
	EventConversationReset     = "conversation_reset"
)

// WebSocketHandler routes incoming socket events to the domain services.
type WebSocketHandler struct {
	users       UserResolver
	actions     *ActionService
	collections *CollectionService
	streams     *StreamService
}

// UserResolver turns the user name carried in event payloads into a user row.
type UserResolver interface {
	GetOrCreateUserByName(ctx context.Context, name string) (*models.User, error)
}

func NewWebSocketHandler(users UserResolver, actions *ActionService, collections *CollectionService, streams *StreamService) *WebSocketHandler {
	return &WebSocketHandler{
		users:       users,
		actions:     actions,
		collections: collections,
		streams:     streams,
	}
}

type userPayloadRef struct {
	User string `json:"user"`
}

type actionPayload struct {
	User          string `json:"user"`
	Transcription string `json:"transcription"`
}

type actionFilePayload struct {
	User    string `json:"user"`
	FileB64 string `json:"file_b64"`
}

type streamBatchPayload struct {
	User        string  `json:"user"`
	PCMB64      string  `json:"b64_pcm"`
	Transcoding string  `json:"transcoding"`
	Duration    float64 `json:"duration"`
}

// pcmTranscodings are the audio encodings a stream batch may declare. The
// recognizers only consume 16 kHz signed 16-bit little-endian PCM; anything
// else is rejected up front instead of producing garbage transcripts.
var pcmTranscodings = map[string]bool{
	"":                  true,
	"pcm_s16le":         true,
	"b64_enc_pcm_s16le": true,
}

type importPayload struct {
	User    string `json:"user"`
	FileID  string `json:"file_id,omitempty"`
	FileB64 string `json:"file_b64,omitempty"`
}

// HandleEvent dispatches one incoming event. It runs off the read loop, so
// blocking on model calls is fine.
func (h *WebSocketHandler) HandleEvent(client *ws.Client, event ws.Event) {
	ctx := context.Background()

	switch event.Event {
	case EventSubmitAction:
		h.handleSubmitAction(ctx, client, event.Data)
	case EventSubmitActionFile:
		h.handleSubmitActionFile(ctx, client, event.Data)
	case EventStartAudioStreaming:
		h.handleStartStreaming(ctx, client, event.Data)
	case EventSubmitStreamBatch:
		h.handleStreamBatch(ctx, client, event.Data)
	case EventStopAudioStreaming:
		h.handleStopStreaming(ctx, client, event.Data)
	case EventExportCollection:
		h.handleExport(ctx, client, event.Data)
	case EventImportCollection:
		h.handleImport(ctx, client, event.Data)
	case EventResetCollection:
		h.handleReset(ctx, client, event.Data)
	case EventNewConversation:
		h.handleNewConversation(ctx, client, event.Data)
	default:
		slog.Warn("Unknown event", "event", event.Event, "session_id", client.SessionID)
		h.sendError(client, "unknown event: "+event.Event)
	}
}

func (h *WebSocketHandler) resolveUser(ctx context.Context, client *ws.Client, name string) (*models.User, bool) {
	if name == "" {
		name = client.User
	}
	if name == "" {
		h.sendError(client, "missing user")
		return nil, false
	}

	user, err := h.users.GetOrCreateUserByName(ctx, name)
	if err != nil {
		h.sendError(client, "failed to resolve user")
		return nil, false
	}
	return user, true
}

func (h *WebSocketHandler) sendError(client *ws.Client, message string) {
	client.SendEvent(EventActionError, map[string]string{"error": message})
}

func (h *WebSocketHandler) progressFunc(client *ws.Client) assistant.ProgressFunc {
	return func(message string, srsAction bool) {
		client.SendEvent(EventActionProgress, map[string]any{
			"message":       message,
			"is_srs_action": srsAction,
		})
	}
}

func (h *WebSocketHandler) sendResult(client *ws.Client, result *assistant.Result) {
	client.SendEvent(EventActionResult, map[string]any{
		"result": map[string]string{
			"task_finish_message": result.TaskFinishMessage,
			"question_answer":     result.QuestionAnswer,
		},
	})
}

func (h *WebSocketHandler) handleSubmitAction(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload actionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid submit_action payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	result, err := h.actions.HandleTask(ctx, user, payload.Transcription, h.progressFunc(client))
	if err != nil {
		slog.Error("Task failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	h.sendResult(client, result)
}

func (h *WebSocketHandler) handleSubmitActionFile(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload actionFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid submit_action_file payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	audio, err := base64.StdEncoding.DecodeString(payload.FileB64)
	if err != nil {
		h.sendError(client, "invalid base64 audio data")
		return
	}

	result, transcription, err := h.actions.HandleAudioTask(ctx, user, audio, h.progressFunc(client))
	if err != nil {
		slog.Error("Audio task failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}

	slog.Info("Audio task completed", "user", user.Name, "transcription_length", len(transcription))
	h.sendResult(client, result)
}

func (h *WebSocketHandler) handleStartStreaming(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload userPayloadRef
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid start_audio_streaming payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	callbacks := StreamCallbacks{
		OnPart: func(text string) {
			client.SendEvent(EventStreamedSentencePart, map[string]string{"part": text})
		},
		OnSentence: func(text string) {
			client.SendEvent(EventCompleteSentence, map[string]string{"sentence": text})
			// Each completed sentence runs through the action pipeline, so
			// the user can speak commands continuously.
			go h.runSentenceTask(user, client, text)
		},
	}

	if err := h.streams.Start(ctx, user.Name, callbacks); err != nil {
		slog.Error("Failed to start audio streaming", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	client.SendEvent(EventStreamStartAck, map[string]string{"user": user.Name})
}

func (h *WebSocketHandler) runSentenceTask(user *models.User, client *ws.Client, sentence string) {
	result, err := h.actions.HandleTask(context.Background(), user, sentence, h.progressFunc(client))
	if err != nil {
		slog.Error("Spoken task failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	h.sendResult(client, result)
}

func (h *WebSocketHandler) handleStreamBatch(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload streamBatchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid submit_stream_batch payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	if !pcmTranscodings[payload.Transcoding] {
		h.sendError(client, "unsupported transcoding: "+payload.Transcoding)
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(payload.PCMB64)
	if err != nil {
		h.sendError(client, "invalid base64 audio data")
		return
	}

	duration := payload.Duration
	if duration == 0 {
		duration = asr.PCMDuration(len(pcm)).Seconds()
	}
	slog.Debug("Stream batch received", "user", user.Name, "bytes", len(pcm), "duration", duration)

	if err := h.streams.PushBatch(ctx, user.Name, pcm); err != nil {
		slog.Error("Stream batch failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
	}
}

func (h *WebSocketHandler) handleStopStreaming(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload userPayloadRef
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid stop_audio_streaming payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}
	h.streams.Stop(ctx, user.Name)
}

type exportPayload struct {
	User     string `json:"user"`
	DeckName string `json:"deck_name,omitempty"`
}

func (h *WebSocketHandler) handleExport(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload exportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid export_anki_collection payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	file, err := h.collections.Export(ctx, user.ID, payload.DeckName)
	if err != nil {
		slog.Error("Export failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	client.SendEvent(EventCollectionExported, map[string]any{
		"file_id": file.ID,
		"name":    file.Name,
		"size":    file.Size,
	})
}

func (h *WebSocketHandler) handleImport(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid import_anki_collection payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	var decks, cards int
	var err error
	switch {
	case payload.FileID != "":
		decks, cards, err = h.collections.ImportFile(ctx, user.ID, payload.FileID)
	case payload.FileB64 != "":
		var raw []byte
		raw, err = base64.StdEncoding.DecodeString(payload.FileB64)
		if err != nil {
			h.sendError(client, "invalid base64 package data")
			return
		}
		decks, cards, err = h.collections.Import(ctx, user.ID, raw)
	default:
		h.sendError(client, "import requires file_id or file_b64")
		return
	}

	if err != nil {
		slog.Error("Import failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	client.SendEvent(EventCollectionImported, map[string]int{
		"decks": decks,
		"cards": cards,
	})
}

func (h *WebSocketHandler) handleReset(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload userPayloadRef
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid reset_anki_collection payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	if err := h.collections.Reset(ctx, user.ID); err != nil {
		slog.Error("Reset failed", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	client.SendEvent(EventCollectionReset, map[string]string{"user": user.Name})
}

func (h *WebSocketHandler) handleNewConversation(ctx context.Context, client *ws.Client, data json.RawMessage) {
	var payload userPayloadRef
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "invalid new_conversation payload")
		return
	}

	user, ok := h.resolveUser(ctx, client, payload.User)
	if !ok {
		return
	}

	if err := h.actions.NewConversation(ctx, user.ID); err != nil {
		slog.Error("Failed to reset conversation", "error", err, "user", user.Name)
		h.sendError(client, err.Error())
		return
	}
	client.SendEvent(EventConversationReset, map[string]string{"user": user.Name})
}

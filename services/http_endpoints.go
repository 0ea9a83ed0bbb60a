package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/curatorlabs/curator/asr"
	"github.com/curatorlabs/curator/pdfcards"
	"github.com/curatorlabs/curator/repository"
	"github.com/curatorlabs/curator/srs"
)

const maxUploadBytes = 64 << 20

// APIEndpoints serves the REST surface: package upload and download, deck
// listings, conversation stats, one-shot transcription and PDF card
// generation.
type APIEndpoints struct {
	files         *FileStore
	collections   *CollectionService
	store         *srs.Store
	conversations *repository.ConversationRepository
	transcriber   asr.Transcriber
	generator     *pdfcards.Generator
}

func NewAPIEndpoints(files *FileStore, collections *CollectionService, store *srs.Store, conversations *repository.ConversationRepository, transcriber asr.Transcriber, generator *pdfcards.Generator) *APIEndpoints {
	return &APIEndpoints{
		files:         files,
		collections:   collections,
		store:         store,
		conversations: conversations,
		transcriber:   transcriber,
		generator:     generator,
	}
}

func (e *APIEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/anki", func(r chi.Router) {
		r.Post("/upload", e.UploadHandler)
		r.Get("/download/{fileID}", e.DownloadHandler)
		r.Delete("/files/{fileID}", e.DeleteFileHandler)
		r.Get("/decks", e.DecksHandler)
	})
	r.Get("/conversation/stats", e.ConversationStatsHandler)
	r.Post("/transcribe", e.TranscribeHandler)
	r.Post("/pdf/generate", e.GenerateFromPDFHandler)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// UploadHandler accepts a multipart .apkg upload and stores it for a later
// import_anki_collection event.
func (e *APIEndpoints) UploadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer upload.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".apkg") {
		http.Error(w, "Only .apkg files are accepted", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(upload, maxUploadBytes))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	file, err := e.files.Save(r.Context(), user.ID, header.Filename, data)
	if err != nil {
		slog.Error("Package upload failed", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to store package", http.StatusInternalServerError)
		return
	}

	slog.Info("Package uploaded", "user_id", user.ID, "file_id", file.ID, "size", file.Size)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"file_id": file.ID,
		"name":    file.Name,
		"size":    file.Size,
	})
}

// DownloadHandler streams a stored package back to its owner.
func (e *APIEndpoints) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	fileID := chi.URLParam(r, "fileID")
	meta, f, err := e.files.Open(r.Context(), user.ID, fileID)
	if err != nil {
		slog.Error("Package download failed", "error", err, "user_id", user.ID, "file_id", fileID)
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", meta.Size))
	io.Copy(w, f)
}

// DeleteFileHandler removes a stored package.
func (e *APIEndpoints) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	fileID := chi.URLParam(r, "fileID")
	if err := e.files.Delete(r.Context(), user.ID, fileID); err != nil {
		slog.Error("Package delete failed", "error", err, "user_id", user.ID, "file_id", fileID)
		http.Error(w, "Package not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Package deleted"})
}

// DecksHandler lists the user's decks with card counts.
func (e *APIEndpoints) DecksHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	decks, err := e.collections.Decks(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to list decks", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to list decks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

// ConversationStatsHandler reports message and action counts for the user's
// conversation history.
func (e *APIEndpoints) ConversationStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	if e.conversations == nil {
		http.Error(w, "Conversation storage not configured", http.StatusServiceUnavailable)
		return
	}

	stats, err := e.conversations.Stats(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to load conversation stats", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type transcribeRequest struct {
	PCMB64   string  `json:"b64_pcm"`
	Duration float64 `json:"duration,omitempty"`
}

// TranscribeHandler runs the configured transcriber over one base64 PCM
// payload and returns the text.
func (e *APIEndpoints) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserFromContext(r.Context()); !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	if e.transcriber == nil {
		http.Error(w, "No transcriber configured", http.StatusServiceUnavailable)
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.PCMB64)
	if err != nil || len(audio) == 0 {
		http.Error(w, "Missing or invalid b64_pcm", http.StatusBadRequest)
		return
	}

	text, err := e.transcriber.TranscribePCM(r.Context(), audio)
	if err != nil {
		slog.Error("Transcription failed", "error", err)
		http.Error(w, "Transcription failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

// GenerateFromPDFHandler turns an uploaded PDF into flashcards. When a deck
// name is given the drafts are added to that deck, otherwise they are only
// returned for review.
func (e *APIEndpoints) GenerateFromPDFHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	if e.generator == nil {
		http.Error(w, "No language model configured", http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer upload.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		http.Error(w, "Only .pdf files are accepted", http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp("", "curator-*.pdf")
	if err != nil {
		http.Error(w, "Failed to buffer upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(upload, maxUploadBytes)); err != nil {
		tmp.Close()
		http.Error(w, "Failed to buffer upload", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	progress := func(page, total, cards int) {
		slog.Info("Generating cards from PDF", "user_id", user.ID, "page", page, "pages", total, "cards", cards)
	}

	drafts, err := e.generator.GenerateFromPDF(r.Context(), tmp.Name(), progress)
	if err != nil {
		slog.Error("PDF card generation failed", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to generate cards", http.StatusInternalServerError)
		return
	}

	deckName := r.FormValue("deck")
	added := 0
	var deckID string
	if deckName != "" {
		deck, err := e.store.GetDeckByName(r.Context(), user.ID, deckName)
		if err != nil {
			deck, err = e.store.AddDeck(r.Context(), user.ID, deckName)
			if err != nil {
				slog.Error("Failed to create deck for PDF cards", "error", err, "user_id", user.ID)
				http.Error(w, "Failed to create deck", http.StatusInternalServerError)
				return
			}
		}
		deckID = deck.ID

		for _, draft := range drafts {
			if _, err := e.store.AddCard(r.Context(), user.ID, deck.ID, draft.Question, draft.Answer, srs.StateNew, srs.FlagNone); err != nil {
				slog.Error("Failed to add generated card", "error", err, "deck_id", deck.ID)
				continue
			}
			added++
		}
	}

	slog.Info("PDF cards generated", "user_id", user.ID, "cards", len(drafts), "added", added, "deck", deckName)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cards":   drafts,
		"added":   added,
		"deck_id": deckID,
	})
}

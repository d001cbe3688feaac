package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/tts"
)

// maxBatchSize bounds one batch synthesis request.
const maxBatchSize = 10

// speakRequest is the JSON body of a synthesis request.
type speakRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Engine   string  `json:"engine,omitempty"`
}

// handleSpeak synthesizes one text into a served audio file.
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.NewValidation("invalid request body: "+err.Error()))
		return
	}

	result, err := h.speech.Synthesize(r.Context(), req.Engine, tts.Request{
		Text:     req.Text,
		Language: req.Language,
		Speed:    req.Speed,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, speechResponse(result))
}

// handleSpeakBatch synthesizes up to maxBatchSize texts in one request.
// Individual failures do not fail the batch; each item carries its own
// error.
func (h *Handler) handleSpeakBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []speakRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.NewValidation("invalid request body: "+err.Error()))
		return
	}

	if len(req.Requests) == 0 {
		h.writeError(w, r, errors.NewValidation("requests must not be empty"))
		return
	}
	if len(req.Requests) > maxBatchSize {
		h.writeError(w, r, errors.NewValidation(
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(req.Requests), maxBatchSize)))
		return
	}

	results := make([]map[string]interface{}, 0, len(req.Requests))
	succeeded := 0

	for i, item := range req.Requests {
		result, err := h.speech.Synthesize(r.Context(), item.Engine, tts.Request{
			Text:     item.Text,
			Language: item.Language,
			Speed:    item.Speed,
		})
		if err != nil {
			results = append(results, map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			continue
		}

		entry := speechResponse(result)
		entry["index"] = i
		results = append(results, entry)
		succeeded++
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(req.Requests),
		"succeeded": succeeded,
		"results":   results,
	})
}

// handleSpeakAudio serves a synthesized audio file by name. Only bare
// filenames inside the output directory are reachable.
func (h *Handler) handleSpeakAudio(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	// Reject any shape of path traversal before touching the filesystem.
	if filename == "" || filename != filepath.Base(filename) ||
		strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		h.writeError(w, r, errors.NewValidation("invalid audio filename"))
		return
	}

	path := filepath.Join(h.audioDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.writeError(w, r, errors.NewNotFound("audio file not found",
			map[string]interface{}{"filename": filename}))
		return
	}

	w.Header().Set("Content-Type", audioContentType(filename))
	http.ServeFile(w, r, path)
}

// speechResponse builds the JSON shape shared by single and batch
// synthesis responses.
func speechResponse(result *tts.Result) map[string]interface{} {
	return map[string]interface{}{
		"filename":    result.Filename,
		"audio_url":   "/api/v1/speak/audio/" + result.Filename,
		"duration":    result.Duration,
		"text_length": result.TextLength,
		"engine":      result.Engine,
	}
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

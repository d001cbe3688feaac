package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/database"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/tts"
)

// Replay synthesis speeds. The recommendations variant is spoken slightly
// slower so the numbered suggestions stay intelligible.
const (
	replaySpeed          = 1.0
	recommendationsSpeed = 0.9
)

// defaultContextSeconds is the replay context window when the request does
// not specify one.
const defaultContextSeconds = 5.0

// handleReplayMoments lists a call's moments eligible for replay, filtered
// by the confidence threshold (default from configuration) and optional
// moment type, most confident first.
func (h *Handler) handleReplayMoments(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	if _, err := h.store.GetCall(r.Context(), callID); err != nil {
		h.writeError(w, r, err)
		return
	}

	filter, err := momentFilterFromQuery(r, h.momentThreshold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	moments, err := h.store.GetMoments(r.Context(), callID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_id":              callID,
		"confidence_threshold": filter.MinConfidence,
		"count":                len(moments),
		"moments":              moments,
	})
}

// handleReplayMomentTypes reports per-type moment counts for a call.
func (h *Handler) handleReplayMomentTypes(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	if _, err := h.store.GetCall(r.Context(), callID); err != nil {
		h.writeError(w, r, err)
		return
	}

	counts, err := h.store.CountMomentsByType(r.Context(), callID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_id":      callID,
		"moment_types": counts,
		"total":        total,
	})
}

// replayRequest is the JSON body of a moment replay request. Both fields
// are optional.
type replayRequest struct {
	IncludeContext *bool    `json:"include_context,omitempty"`
	ContextSeconds *float64 `json:"context_seconds,omitempty"`
	Language       string   `json:"language,omitempty"`
	Engine         string   `json:"engine,omitempty"`
}

// handleReplayMoment builds the speakable text for one moment, optionally
// framed by surrounding utterances, and synthesizes it.
func (h *Handler) handleReplayMoment(w http.ResponseWriter, r *http.Request) {
	req, err := decodeReplayRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	moment, err := h.loadReplayMoment(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	includeContext := true
	if req.IncludeContext != nil {
		includeContext = *req.IncludeContext
	}
	contextSeconds := defaultContextSeconds
	if req.ContextSeconds != nil {
		if *req.ContextSeconds < 0 {
			h.writeError(w, r, errors.NewValidation("context_seconds must not be negative"))
			return
		}
		contextSeconds = *req.ContextSeconds
	}

	var segments []analysis.Segment
	if includeContext {
		utterances, err := h.store.GetUtterances(r.Context(), moment.CallID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		segments = database.ToSegments(utterances)
	}

	text, err := analysis.BuildReplayText(moment.Moment(), segments, includeContext, contextSeconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.synthesizeReplay(w, r, moment, text, req, replaySpeed)
}

// handleReplayRecommendations synthesizes one moment together with its
// numbered coaching recommendations.
func (h *Handler) handleReplayRecommendations(w http.ResponseWriter, r *http.Request) {
	req, err := decodeReplayRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	moment, err := h.loadReplayMoment(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	text, err := analysis.BuildReplayTextWithRecommendations(moment.Moment())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.synthesizeReplay(w, r, moment, text, req, recommendationsSpeed)
}

// loadReplayMoment resolves the {moment_id} path parameter and verifies the
// moment belongs to the {call_id} in the path.
func (h *Handler) loadReplayMoment(r *http.Request) (*database.CoachableMoment, error) {
	momentID, err := strconv.ParseInt(r.PathValue("moment_id"), 10, 64)
	if err != nil {
		return nil, errors.NewValidation("invalid moment id: " + r.PathValue("moment_id"))
	}

	moment, err := h.store.GetMoment(r.Context(), momentID)
	if err != nil {
		return nil, err
	}
	if moment.CallID != r.PathValue("call_id") {
		return nil, errors.NewMomentNotFound(momentID,
			map[string]interface{}{"call_id": r.PathValue("call_id")})
	}

	return moment, nil
}

// decodeReplayRequest parses the optional JSON body of a replay request.
// An empty body means all defaults.
func decodeReplayRequest(r *http.Request) (replayRequest, error) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return req, errors.NewValidation("invalid request body: " + err.Error())
	}
	return req, nil
}

// synthesizeReplay renders the replay text through TTS and writes the
// combined response.
func (h *Handler) synthesizeReplay(w http.ResponseWriter, r *http.Request, moment *database.CoachableMoment, text string, req replayRequest, speed float64) {
	result, err := h.speech.Synthesize(r.Context(), req.Engine, tts.Request{
		Text:     text,
		Language: req.Language,
		Speed:    speed,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response := speechResponse(result)
	response["call_id"] = moment.CallID
	response["moment_id"] = moment.ID
	response["moment_type"] = moment.MomentType
	response["replay_text"] = text

	h.writeJSON(w, http.StatusOK, response)
}

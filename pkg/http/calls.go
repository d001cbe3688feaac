package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/database"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
	"callcoach-server/pkg/pipeline"
)

// multipartMemoryLimit is how much of an upload ParseMultipartForm keeps in
// memory before spilling to temp files.
const multipartMemoryLimit = 8 << 20

// handleUploadCall accepts a multipart recording upload, creates the call
// record, and enqueues the transcription job.
func (h *Handler) handleUploadCall(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxSizeBytes()+multipartMemoryLimit)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		h.writeError(w, r, errors.NewValidation("invalid multipart request: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		h.writeError(w, r, errors.NewValidation("audio_file is required"))
		return
	}
	defer file.Close()

	if err := h.uploads.Validate(header.Filename, header.Size); err != nil {
		metrics.RecordUpload(extensionOf(header.Filename), "rejected", header.Size)
		h.writeError(w, r, err)
		return
	}

	callID := r.FormValue("call_id")
	if callID == "" {
		callID = uuid.New().String()
	}

	path, err := h.uploads.Save(file, header.Filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	call := &database.SalesCall{
		CallID:     callID,
		AgentID:    r.FormValue("agent_id"),
		CustomerID: r.FormValue("customer_id"),
		AudioPath:  path,
		Status:     database.StatusProcessing,
	}
	if err := h.store.CreateCall(r.Context(), call); err != nil {
		h.uploads.Remove(path)
		h.writeError(w, r, err)
		return
	}

	job := pipeline.NewJob(pipeline.KindTranscribe, callID)
	job.AudioPath = path
	job.Provider = r.FormValue("provider")

	if err := h.jobs.Submit(r.Context(), job); err != nil {
		h.writeError(w, r, err)
		return
	}

	metrics.RecordUpload(extensionOf(header.Filename), "accepted", header.Size)
	h.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"job_id":     job.ID,
		"size_bytes": header.Size,
	}).Info("Recording uploaded, analysis queued")

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"call_id": callID,
		"job_id":  job.ID,
		"status":  database.StatusProcessing,
		"message": "recording accepted for analysis",
	})
}

// handleCallStatus reports the pipeline status of one call.
func (h *Handler) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	call, err := h.store.GetCall(r.Context(), r.PathValue("call_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_id":    call.CallID,
		"status":     call.Status,
		"duration":   call.Duration,
		"created_at": call.CreatedAt,
		"updated_at": call.UpdatedAt,
	})
}

// handleCallTranscript returns the stored transcript with its utterances
// and the call-level sentiment rollup.
func (h *Handler) handleCallTranscript(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	transcript, err := h.store.GetTranscript(r.Context(), callID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utterances, err := h.store.GetUtterances(r.Context(), callID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_id":         callID,
		"full_transcript": transcript.FullText,
		"duration":        transcript.Duration,
		"sentiment":       transcript.Sentiment,
		"utterances":      utterances,
	})
}

// handleCallMoments lists a call's detected moments, most confident first.
// Supports moment_type and min_confidence query filters.
func (h *Handler) handleCallMoments(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	if _, err := h.store.GetCall(r.Context(), callID); err != nil {
		h.writeError(w, r, err)
		return
	}

	filter, err := momentFilterFromQuery(r, 0)
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
		"call_id": callID,
		"count":   len(moments),
		"moments": moments,
	})
}

// handleCallSummary returns the stored executive summary.
func (h *Handler) handleCallSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.GetSummary(r.Context(), r.PathValue("call_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// handleCallAnalysis recomputes the call content aggregate from the stored
// transcript and moments. The aggregate is derived data and is always
// computed fresh rather than read back from the summary snapshot.
func (h *Handler) handleCallAnalysis(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	transcript, err := h.store.GetTranscript(r.Context(), callID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utterances, err := h.store.GetUtterances(r.Context(), callID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	moments, err := h.store.GetMoments(r.Context(), callID, database.MomentFilter{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data := analysis.TranscriptData{
		FullTranscript: transcript.FullText,
		Segments:       analysis.PrepareSegments(database.ToSegments(utterances)),
		Duration:       transcript.Duration,
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"call_id":  callID,
		"analysis": h.analyzer.Analyze(data, database.ToMoments(moments)),
	})
}

// handleAnalyzeMoments queues a full re-detection over the stored
// utterances, replacing the call's moment set.
func (h *Handler) handleAnalyzeMoments(w http.ResponseWriter, r *http.Request) {
	h.submitJob(w, r, pipeline.KindReanalyzeMoments)
}

// handleRegenerateSummary queues a rebuild of the executive summary from
// stored data, replacing the previous one.
func (h *Handler) handleRegenerateSummary(w http.ResponseWriter, r *http.Request) {
	h.submitJob(w, r, pipeline.KindRegenerateSummary)
}

// handleRescoreSentiment queues a sentiment re-score of every stored
// utterance plus the call-level rollup.
func (h *Handler) handleRescoreSentiment(w http.ResponseWriter, r *http.Request) {
	h.submitJob(w, r, pipeline.KindRescoreSentiment)
}

// submitJob enqueues a stored-data analysis job for an existing call.
func (h *Handler) submitJob(w http.ResponseWriter, r *http.Request, kind pipeline.JobKind) {
	callID := r.PathValue("call_id")

	if _, err := h.store.GetCall(r.Context(), callID); err != nil {
		h.writeError(w, r, err)
		return
	}

	job := pipeline.NewJob(kind, callID)
	if err := h.jobs.Submit(r.Context(), job); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"call_id": callID,
		"job_id":  job.ID,
		"kind":    job.Kind,
		"status":  job.Status,
	})
}

// momentFilterFromQuery parses the shared moment filter query parameters.
// defaultConfidence applies when confidence_threshold is absent.
func momentFilterFromQuery(r *http.Request, defaultConfidence float64) (database.MomentFilter, error) {
	filter := database.MomentFilter{
		MomentType:    r.URL.Query().Get("moment_type"),
		MinConfidence: defaultConfidence,
	}

	for _, key := range []string{"min_confidence", "confidence_threshold"} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 || value > 1 {
			return filter, errors.NewValidation(fmt.Sprintf("invalid %s: %q", key, raw))
		}
		filter.MinConfidence = value
	}

	return filter, nil
}

// extensionOf extracts a lowercase extension without the dot, for metric
// labels.
func extensionOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

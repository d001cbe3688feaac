package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/audio"
	"callcoach-server/pkg/config"
	"callcoach-server/pkg/database"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
	"callcoach-server/pkg/pipeline"
	"callcoach-server/pkg/tts"
)

// CallStore is the persistence surface the API reads from. Implemented by
// database.Repository.
type CallStore interface {
	CreateCall(ctx context.Context, call *database.SalesCall) error
	GetCall(ctx context.Context, callID string) (*database.SalesCall, error)
	GetTranscript(ctx context.Context, callID string) (*database.Transcript, error)
	GetUtterances(ctx context.Context, callID string) ([]database.Utterance, error)
	GetMoments(ctx context.Context, callID string, filter database.MomentFilter) ([]database.CoachableMoment, error)
	GetMoment(ctx context.Context, id int64) (*database.CoachableMoment, error)
	CountMomentsByType(ctx context.Context, callID string) (map[string]int, error)
	GetSummary(ctx context.Context, callID string) (*database.ExecutiveSummary, error)
}

// JobSubmitter hands analysis work to the background pipeline. Implemented
// by pipeline.Processor.
type JobSubmitter interface {
	Submit(ctx context.Context, job *pipeline.Job) error
}

// SpeechSynthesizer renders text into an audio artifact. Implemented by
// tts.EngineManager.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, engineName string, req tts.Request) (*tts.Result, error)
}

// HandlerOptions wires the API handler's collaborators.
type HandlerOptions struct {
	Store    CallStore
	Jobs     JobSubmitter
	Uploads  *audio.Store
	Speech   SpeechSynthesizer
	Analyzer *analysis.ContentAnalyzer

	// AudioDir is where synthesized TTS files live, for serving.
	AudioDir string

	// MomentThreshold is the default replay confidence filter.
	MomentThreshold float64
}

// Handler implements the REST API over the analysis pipeline.
type Handler struct {
	logger          *logrus.Logger
	store           CallStore
	jobs            JobSubmitter
	uploads         *audio.Store
	speech          SpeechSynthesizer
	analyzer        *analysis.ContentAnalyzer
	audioDir        string
	momentThreshold float64
}

// NewHandler creates the API handler over the given collaborators.
func NewHandler(logger *logrus.Logger, opts HandlerOptions) *Handler {
	threshold := opts.MomentThreshold
	if threshold <= 0 {
		threshold = config.DefaultMomentThreshold
	}

	return &Handler{
		logger:          logger,
		store:           opts.Store,
		jobs:            opts.Jobs,
		uploads:         opts.Uploads,
		speech:          opts.Speech,
		analyzer:        opts.Analyzer,
		audioDir:        opts.AudioDir,
		momentThreshold: threshold,
	}
}

// Register mounts every API route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	h.handle(mux, "POST /api/v1/calls", "upload_call", h.handleUploadCall)
	h.handle(mux, "GET /api/v1/calls/{call_id}/status", "call_status", h.handleCallStatus)
	h.handle(mux, "GET /api/v1/calls/{call_id}/transcript", "call_transcript", h.handleCallTranscript)
	h.handle(mux, "GET /api/v1/calls/{call_id}/moments", "call_moments", h.handleCallMoments)
	h.handle(mux, "GET /api/v1/calls/{call_id}/summary", "call_summary", h.handleCallSummary)
	h.handle(mux, "GET /api/v1/calls/{call_id}/analysis", "call_analysis", h.handleCallAnalysis)
	h.handle(mux, "POST /api/v1/calls/{call_id}/analyze-moments", "analyze_moments", h.handleAnalyzeMoments)
	h.handle(mux, "POST /api/v1/calls/{call_id}/regenerate-summary", "regenerate_summary", h.handleRegenerateSummary)
	h.handle(mux, "POST /api/v1/calls/{call_id}/rescore-sentiment", "rescore_sentiment", h.handleRescoreSentiment)

	h.handle(mux, "POST /api/v1/speak", "speak", h.handleSpeak)
	h.handle(mux, "POST /api/v1/speak/batch", "speak_batch", h.handleSpeakBatch)
	h.handle(mux, "GET /api/v1/speak/audio/{filename}", "speak_audio", h.handleSpeakAudio)

	h.handle(mux, "GET /api/v1/replay/{call_id}/moments", "replay_moments", h.handleReplayMoments)
	h.handle(mux, "GET /api/v1/replay/{call_id}/moment-types", "replay_moment_types", h.handleReplayMomentTypes)
	h.handle(mux, "POST /api/v1/replay/{call_id}/moments/{moment_id}", "replay_moment", h.handleReplayMoment)
	h.handle(mux, "POST /api/v1/replay/{call_id}/moments/{moment_id}/recommendations", "replay_recommendations", h.handleReplayRecommendations)
}

// handle wraps a route with request logging and Prometheus accounting. The
// route name keeps metric label cardinality independent of path parameters.
func (h *Handler) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		stop := metrics.ObserveHTTPRequest(r.Method, name)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		fn(recorder, r)

		stop()
		metrics.RecordHTTPRequest(r.Method, name, strconv.Itoa(recorder.status))
		h.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      recorder.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Handled API request")
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("Failed to encode API response")
	}
}

// writeError maps an error onto its HTTP status and logs it.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, err)
	h.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Warn("API request failed")
}

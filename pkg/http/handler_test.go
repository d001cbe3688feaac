package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/audio"
	"callcoach-server/pkg/config"
	"callcoach-server/pkg/database"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/pipeline"
	"callcoach-server/pkg/tts"
)

// fakeCallStore keeps the API's read surface in maps.
type fakeCallStore struct {
	calls       map[string]*database.SalesCall
	transcripts map[string]*database.Transcript
	utterances  map[string][]database.Utterance
	moments     map[int64]*database.CoachableMoment
	summaries   map[string]*database.ExecutiveSummary
	lastFilter  database.MomentFilter
}

func newFakeCallStore() *fakeCallStore {
	return &fakeCallStore{
		calls:       make(map[string]*database.SalesCall),
		transcripts: make(map[string]*database.Transcript),
		utterances:  make(map[string][]database.Utterance),
		moments:     make(map[int64]*database.CoachableMoment),
		summaries:   make(map[string]*database.ExecutiveSummary),
	}
}

func (s *fakeCallStore) CreateCall(ctx context.Context, call *database.SalesCall) error {
	if _, exists := s.calls[call.CallID]; exists {
		return errors.Wrap(errors.ErrCallAlreadyExists, fmt.Sprintf("call %s already exists", call.CallID))
	}
	s.calls[call.CallID] = call
	return nil
}

func (s *fakeCallStore) GetCall(ctx context.Context, callID string) (*database.SalesCall, error) {
	call, ok := s.calls[callID]
	if !ok {
		return nil, errors.NewCallNotFound(callID)
	}
	return call, nil
}

func (s *fakeCallStore) GetTranscript(ctx context.Context, callID string) (*database.Transcript, error) {
	transcript, ok := s.transcripts[callID]
	if !ok {
		return nil, errors.Wrap(errors.ErrTranscriptNotFound, fmt.Sprintf("no transcript for call %s", callID))
	}
	return transcript, nil
}

func (s *fakeCallStore) GetUtterances(ctx context.Context, callID string) ([]database.Utterance, error) {
	return s.utterances[callID], nil
}

func (s *fakeCallStore) GetMoments(ctx context.Context, callID string, filter database.MomentFilter) ([]database.CoachableMoment, error) {
	s.lastFilter = filter
	var moments []database.CoachableMoment
	for _, m := range s.moments {
		if m.CallID != callID {
			continue
		}
		if filter.MomentType != "" && m.MomentType != filter.MomentType {
			continue
		}
		if m.Confidence < filter.MinConfidence {
			continue
		}
		moments = append(moments, *m)
	}
	return moments, nil
}

func (s *fakeCallStore) GetMoment(ctx context.Context, id int64) (*database.CoachableMoment, error) {
	moment, ok := s.moments[id]
	if !ok {
		return nil, errors.NewMomentNotFound(id)
	}
	return moment, nil
}

func (s *fakeCallStore) CountMomentsByType(ctx context.Context, callID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, m := range s.moments {
		if m.CallID == callID {
			counts[m.MomentType]++
		}
	}
	return counts, nil
}

func (s *fakeCallStore) GetSummary(ctx context.Context, callID string) (*database.ExecutiveSummary, error) {
	summary, ok := s.summaries[callID]
	if !ok {
		return nil, errors.Wrap(errors.ErrSummaryNotFound, fmt.Sprintf("no executive summary for call %s", callID))
	}
	return summary, nil
}

// fakeJobs records submitted jobs and can simulate a busy call.
type fakeJobs struct {
	submitted []*pipeline.Job
	busyCall  string
}

func (j *fakeJobs) Submit(ctx context.Context, job *pipeline.Job) error {
	if job.CallID == j.busyCall {
		return errors.Wrap(errors.ErrJobInProgress, fmt.Sprintf("call %s already has a job in flight", job.CallID))
	}
	j.submitted = append(j.submitted, job)
	return nil
}

// fakeSpeech records synthesis requests and fabricates results.
type fakeSpeech struct {
	requests []tts.Request
	engines  []string
}

func (s *fakeSpeech) Synthesize(ctx context.Context, engineName string, req tts.Request) (*tts.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.NewEmptyText("text is required for speech synthesis")
	}
	s.requests = append(s.requests, req)
	s.engines = append(s.engines, engineName)
	return &tts.Result{
		AudioPath:  "/tmp/out.mp3",
		Filename:   "out.mp3",
		Duration:   1.5,
		TextLength: len(req.Text),
		Engine:     "mock",
	}, nil
}

type apiFixture struct {
	store  *fakeCallStore
	jobs   *fakeJobs
	speech *fakeSpeech
	mux    *http.ServeMux
	ttsDir string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	uploads, err := audio.NewStore(logger, &config.AudioConfig{
		UploadDir:        t.TempDir(),
		MaxSizeMB:        1,
		SupportedFormats: []string{"wav", "mp3", "m4a"},
	})
	require.NoError(t, err)

	fixture := &apiFixture{
		store:  newFakeCallStore(),
		jobs:   &fakeJobs{},
		speech: &fakeSpeech{},
		ttsDir: t.TempDir(),
	}

	handler := NewHandler(logger, HandlerOptions{
		Store:           fixture.store,
		Jobs:            fixture.jobs,
		Uploads:         uploads,
		Speech:          fixture.speech,
		Analyzer:        analysis.NewContentAnalyzer(analysis.DefaultDetectionConfig().TopicKeywords),
		AudioDir:        fixture.ttsDir,
		MomentThreshold: 0.7,
	})

	fixture.mux = http.NewServeMux()
	handler.Register(fixture.mux)

	return fixture
}

func (f *apiFixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, req)
	return recorder
}

func (f *apiFixture) decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile("audio_file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestUploadCallQueuesTranscription(t *testing.T) {
	fixture := newAPIFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"call_id":  "call-1",
		"agent_id": "agent-7",
	}, "recording.mp3", []byte("audio-bytes"))

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls", body, contentType)
	require.Equal(t, http.StatusAccepted, recorder.Code, "upload should be accepted: %s", recorder.Body.String())

	response := fixture.decode(t, recorder)
	assert.Equal(t, "call-1", response["call_id"])
	assert.Equal(t, "processing", response["status"])

	require.Len(t, fixture.jobs.submitted, 1, "one transcribe job should be queued")
	job := fixture.jobs.submitted[0]
	assert.Equal(t, pipeline.KindTranscribe, job.Kind)
	assert.Equal(t, "call-1", job.CallID)
	assert.NotEmpty(t, job.AudioPath, "job should carry the stored audio path")

	call, err := fixture.store.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", call.AgentID)
	assert.FileExists(t, call.AudioPath, "upload should be stored on disk")
}

func TestUploadCallRejectsUnsupportedFormat(t *testing.T) {
	fixture := newAPIFixture(t)

	body, contentType := multipartUpload(t, map[string]string{"call_id": "call-1"}, "notes.txt", []byte("text"))

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls", body, contentType)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, fixture.jobs.submitted, "no job should be queued for a rejected upload")
}

func TestUploadCallDuplicateConflicts(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}

	body, contentType := multipartUpload(t, map[string]string{"call_id": "call-1"}, "recording.wav", []byte("audio"))

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls", body, contentType)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestUploadCallBusyCallConflicts(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.jobs.busyCall = "call-1"

	body, contentType := multipartUpload(t, map[string]string{"call_id": "call-1"}, "recording.wav", []byte("audio"))

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls", body, contentType)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestCallStatusUnknownCallMapsTo404(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/calls/missing/status", nil, "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCallMomentsAppliesQueryFilter(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.moments[1] = &database.CoachableMoment{ID: 1, CallID: "call-1", MomentType: "objection", Confidence: 0.69}
	fixture.store.moments[2] = &database.CoachableMoment{ID: 2, CallID: "call-1", MomentType: "buying_signal", Confidence: 0.78}

	recorder := fixture.do(t, http.MethodGet, "/api/v1/calls/call-1/moments?moment_type=objection&min_confidence=0.5", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := fixture.decode(t, recorder)
	assert.Equal(t, float64(1), response["count"])
	assert.Equal(t, database.MomentFilter{MomentType: "objection", MinConfidence: 0.5}, fixture.store.lastFilter)
}

func TestCallMomentsRejectsBadConfidence(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}

	recorder := fixture.do(t, http.MethodGet, "/api/v1/calls/call-1/moments?min_confidence=high", nil, "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCallAnalysisRecomputesAggregate(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.transcripts["call-1"] = &database.Transcript{
		CallID:   "call-1",
		FullText: "What does the pricing look like for onboarding?",
		Duration: 120,
	}
	fixture.store.utterances["call-1"] = []database.Utterance{
		{CallID: "call-1", SpeakerID: "speaker_1", Text: "What does the pricing look like for onboarding?", StartTime: 1, EndTime: 4},
	}
	fixture.store.moments[1] = &database.CoachableMoment{ID: 1, CallID: "call-1", MomentType: "information_request", Confidence: 0.8}

	recorder := fixture.do(t, http.MethodGet, "/api/v1/calls/call-1/analysis", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := fixture.decode(t, recorder)
	aggregate := response["analysis"].(map[string]interface{})
	assert.Equal(t, float64(120), aggregate["total_duration"])
	assert.Equal(t, float64(1), aggregate["total_segments"])
	assert.Equal(t, float64(1), aggregate["question_count"])

	topics := aggregate["topic_areas"].([]interface{})
	assert.Contains(t, topics, "pricing")
	assert.Contains(t, topics, "implementation")
}

func TestAnalyzeMomentsQueuesJob(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls/call-1/analyze-moments", nil, "")
	require.Equal(t, http.StatusAccepted, recorder.Code)

	require.Len(t, fixture.jobs.submitted, 1)
	assert.Equal(t, pipeline.KindReanalyzeMoments, fixture.jobs.submitted[0].Kind)
}

func TestRegenerateSummaryUnknownCall404(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/calls/missing/regenerate-summary", nil, "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Empty(t, fixture.jobs.submitted)
}

func TestReplayMomentsUsesDefaultThreshold(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.moments[1] = &database.CoachableMoment{ID: 1, CallID: "call-1", MomentType: "objection", Confidence: 0.69}
	fixture.store.moments[2] = &database.CoachableMoment{ID: 2, CallID: "call-1", MomentType: "buying_signal", Confidence: 0.78}

	recorder := fixture.do(t, http.MethodGet, "/api/v1/replay/call-1/moments", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := fixture.decode(t, recorder)
	assert.Equal(t, 0.7, response["confidence_threshold"], "default threshold should apply")
	assert.Equal(t, float64(1), response["count"], "only the 0.78 moment passes the 0.7 threshold")
}

func TestReplayMomentSynthesizesWithContext(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.moments[5] = &database.CoachableMoment{
		ID:                5,
		CallID:            "call-1",
		MomentType:        "objection",
		Confidence:        0.69,
		StartTime:         10,
		EndTime:           12,
		TranscriptSegment: "This seems expensive",
	}
	fixture.store.utterances["call-1"] = []database.Utterance{
		{CallID: "call-1", SpeakerID: "speaker_1", Text: "Here is our offer", StartTime: 7, EndTime: 9},
		{CallID: "call-1", SpeakerID: "speaker_2", Text: "This seems expensive", StartTime: 10, EndTime: 12},
		{CallID: "call-1", SpeakerID: "speaker_1", Text: "Let me explain the value", StartTime: 13, EndTime: 15},
	}

	recorder := fixture.do(t, http.MethodPost, "/api/v1/replay/call-1/moments/5",
		strings.NewReader(`{"context_seconds": 5}`), "application/json")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	response := fixture.decode(t, recorder)
	replayText := response["replay_text"].(string)
	assert.Contains(t, replayText, "Context leading up to the moment:")
	assert.Contains(t, replayText, "speaker_1: Here is our offer")
	assert.Contains(t, replayText, "Context following the moment:")

	require.Len(t, fixture.speech.requests, 1)
	assert.Equal(t, 1.0, fixture.speech.requests[0].Speed, "replay speaks at normal speed")
}

func TestReplayMomentWrongCall404(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.calls["call-2"] = &database.SalesCall{CallID: "call-2"}
	fixture.store.moments[5] = &database.CoachableMoment{ID: 5, CallID: "call-2", TranscriptSegment: "text"}

	recorder := fixture.do(t, http.MethodPost, "/api/v1/replay/call-1/moments/5", nil, "")
	assert.Equal(t, http.StatusNotFound, recorder.Code, "a moment from another call must not be reachable")
}

func TestReplayRecommendationsSpeaksSlower(t *testing.T) {
	fixture := newAPIFixture(t)
	fixture.store.calls["call-1"] = &database.SalesCall{CallID: "call-1"}
	fixture.store.moments[5] = &database.CoachableMoment{
		ID:                5,
		CallID:            "call-1",
		MomentType:        "objection",
		Confidence:        0.69,
		StartTime:         10,
		EndTime:           12,
		TranscriptSegment: "This seems expensive",
		Recommendations:   []string{"Acknowledge the concern", "Ask clarifying questions"},
	}

	recorder := fixture.do(t, http.MethodPost, "/api/v1/replay/call-1/moments/5/recommendations", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	response := fixture.decode(t, recorder)
	replayText := response["replay_text"].(string)
	assert.Contains(t, replayText, "Coaching recommendations:")
	assert.Contains(t, replayText, "1. Acknowledge the concern")
	assert.Contains(t, replayText, "Confidence level: 69.0%")

	require.Len(t, fixture.speech.requests, 1)
	assert.Equal(t, 0.9, fixture.speech.requests[0].Speed)
}

func TestSpeakEmptyTextIsValidationError(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/speak",
		strings.NewReader(`{"text": "   "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSpeakBatchEnforcesLimit(t *testing.T) {
	fixture := newAPIFixture(t)

	items := make([]string, 0, maxBatchSize+1)
	for i := 0; i <= maxBatchSize; i++ {
		items = append(items, `{"text": "hello"}`)
	}
	body := `{"requests": [` + strings.Join(items, ",") + `]}`

	recorder := fixture.do(t, http.MethodPost, "/api/v1/speak/batch", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSpeakBatchReportsPerItemErrors(t *testing.T) {
	fixture := newAPIFixture(t)

	body := `{"requests": [{"text": "hello"}, {"text": ""}]}`
	recorder := fixture.do(t, http.MethodPost, "/api/v1/speak/batch", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, recorder.Code)

	response := fixture.decode(t, recorder)
	assert.Equal(t, float64(2), response["total"])
	assert.Equal(t, float64(1), response["succeeded"])
}

func TestSpeakAudioRejectsTraversal(t *testing.T) {
	fixture := newAPIFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/speak/audio/..%2Fsecret.mp3", nil, "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSpeakAudioServesStoredFile(t *testing.T) {
	fixture := newAPIFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(fixture.ttsDir, "clip.mp3"), []byte("mp3-bytes"), 0o644))

	recorder := fixture.do(t, http.MethodGet, "/api/v1/speak/audio/clip.mp3", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/mpeg", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "mp3-bytes", recorder.Body.String())

	missing := fixture.do(t, http.MethodGet, "/api/v1/speak/audio/absent.mp3", nil, "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

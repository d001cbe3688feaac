package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/database"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
	"callcoach-server/pkg/sentiment"
	"callcoach-server/pkg/stt"
)

// CallStore is the persistence surface the processor drives. Implemented by
// database.Repository.
type CallStore interface {
	UpdateCallStatus(ctx context.Context, callID, status string) error
	SetCallDuration(ctx context.Context, callID string, duration float64) error
	SaveTranscript(ctx context.Context, transcript *database.Transcript, utterances []database.Utterance) error
	GetTranscript(ctx context.Context, callID string) (*database.Transcript, error)
	GetUtterances(ctx context.Context, callID string) ([]database.Utterance, error)
	UpdateSentiment(ctx context.Context, callID string, utterances []database.Utterance, summary sentiment.Summary) error
	ReplaceMoments(ctx context.Context, callID string, moments []database.CoachableMoment) error
	GetMoments(ctx context.Context, callID string, filter database.MomentFilter) ([]database.CoachableMoment, error)
	SaveSummary(ctx context.Context, summary *database.ExecutiveSummary) error
}

// Transcriber runs speech-to-text over a recording. Implemented by
// stt.ProviderManager.
type Transcriber interface {
	Transcribe(ctx context.Context, providerName, audioPath, callID string) (*stt.Result, error)
}

// EventPublisher announces job outcomes to downstream consumers. A nil
// publisher disables eventing.
type EventPublisher interface {
	PublishEvent(event, callID string, payload map[string]interface{}) error
}

// ProcessorOptions wires the processor's collaborators.
type ProcessorOptions struct {
	Queue       Queue
	Store       CallStore
	Transcriber Transcriber
	Scorer      sentiment.Scorer
	Detector    *analysis.Detector
	Synthesizer *analysis.Synthesizer
	Publisher   EventPublisher
	Workers     int
}

// Processor pulls jobs off the queue and runs the analysis flows against
// the persistence layer.
type Processor struct {
	logger      *logrus.Logger
	queue       Queue
	store       CallStore
	transcriber Transcriber
	scorer      sentiment.Scorer
	detector    *analysis.Detector
	synthesizer *analysis.Synthesizer
	publisher   EventPublisher
	workers     int

	// inFlight maps call ID to the job currently owning it. Enforcement is
	// per process; replicas sharing a Redis queue each keep their own view.
	mu       sync.Mutex
	inFlight map[string]string

	wg sync.WaitGroup
}

// NewProcessor creates a processor over the given collaborators.
func NewProcessor(logger *logrus.Logger, opts ProcessorOptions) *Processor {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	return &Processor{
		logger:      logger,
		queue:       opts.Queue,
		store:       opts.Store,
		transcriber: opts.Transcriber,
		scorer:      opts.Scorer,
		detector:    opts.Detector,
		synthesizer: opts.Synthesizer,
		publisher:   opts.Publisher,
		workers:     workers,
		inFlight:    make(map[string]string),
	}
}

// Submit enqueues a job, enforcing at most one in-flight job per call.
func (p *Processor) Submit(ctx context.Context, job *Job) error {
	p.mu.Lock()
	if activeID, busy := p.inFlight[job.CallID]; busy {
		p.mu.Unlock()
		return errors.Wrap(errors.ErrJobInProgress,
			fmt.Sprintf("call %s already has job %s in flight", job.CallID, activeID))
	}
	p.inFlight[job.CallID] = job.ID
	p.mu.Unlock()

	if err := p.queue.Enqueue(ctx, job); err != nil {
		p.release(job.CallID)
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"call_id": job.CallID,
		"kind":    job.Kind,
	}).Info("Job submitted")

	return nil
}

func (p *Processor) release(callID string) {
	p.mu.Lock()
	delete(p.inFlight, callID)
	p.mu.Unlock()
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.WithField("workers", p.workers).Info("Analysis workers started")
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker", id)

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("Worker stopping")
				return
			}
			log.WithError(err).Warn("Dequeue failed")
			continue
		}
		p.process(ctx, job)
	}
}

// process runs one job to a terminal state or a retry re-enqueue.
func (p *Processor) process(ctx context.Context, job *Job) {
	log := p.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"call_id": job.CallID,
		"kind":    job.Kind,
	})
	log.Info("Job started")

	stop := metrics.ObserveJobDuration(string(job.Kind))
	err := p.dispatch(ctx, job)
	stop()

	if err == nil {
		now := time.Now()
		job.CompletedAt = &now
		job.Status = StatusCompleted
		job.Error = ""
		if uerr := p.queue.UpdateJob(ctx, job); uerr != nil {
			log.WithError(uerr).Warn("Failed to persist job state")
		}
		p.release(job.CallID)
		metrics.RecordJobResult(string(job.Kind), "completed")
		log.Info("Job completed")
		return
	}

	job.Error = err.Error()

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = StatusRetrying
		if uerr := p.queue.UpdateJob(ctx, job); uerr != nil {
			log.WithError(uerr).Warn("Failed to persist job state")
		}
		metrics.RecordJobRetry(string(job.Kind))
		log.WithError(err).WithFields(logrus.Fields{
			"attempt":     job.RetryCount,
			"max_retries": job.MaxRetries,
		}).Warn("Job failed, retrying")

		if qerr := p.queue.Enqueue(ctx, job); qerr != nil {
			p.fail(ctx, job, fmt.Errorf("requeue failed: %v (after: %v)", qerr, err), log)
		}
		return
	}

	p.fail(ctx, job, err, log)
}

// fail moves a job to its terminal failed state.
func (p *Processor) fail(ctx context.Context, job *Job, err error, log *logrus.Entry) {
	now := time.Now()
	job.FailedAt = &now
	job.Status = StatusFailed
	job.Error = err.Error()
	if uerr := p.queue.UpdateJob(ctx, job); uerr != nil {
		log.WithError(uerr).Warn("Failed to persist job state")
	}
	p.release(job.CallID)
	metrics.RecordJobResult(string(job.Kind), "failed")
	log.WithError(err).Error("Job failed")

	// Only a failed transcription invalidates the call itself; the other
	// kinds leave the last good analysis in place.
	if job.Kind == KindTranscribe {
		if serr := p.store.UpdateCallStatus(ctx, job.CallID, database.StatusFailed); serr != nil {
			log.WithError(serr).Warn("Failed to mark call failed")
		}
		p.publish("call.failed", job.CallID, map[string]interface{}{
			"call_id": job.CallID,
			"job_id":  job.ID,
			"error":   job.Error,
		})
	}
}

func (p *Processor) dispatch(ctx context.Context, job *Job) error {
	switch job.Kind {
	case KindTranscribe:
		return p.runTranscribe(ctx, job)
	case KindReanalyzeMoments:
		return p.runReanalyzeMoments(ctx, job)
	case KindRegenerateSummary:
		return p.runRegenerateSummary(ctx, job)
	case KindRescoreSentiment:
		return p.runRescoreSentiment(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// runTranscribe is the full pipeline for a new recording: transcription,
// speaker attribution and sentiment, moment detection, executive summary,
// then persistence and the analyzed event.
func (p *Processor) runTranscribe(ctx context.Context, job *Job) error {
	done := metrics.StartCallTimer()
	defer done()

	if err := p.store.UpdateCallStatus(ctx, job.CallID, database.StatusProcessing); err != nil {
		return fmt.Errorf("marking call processing: %w", err)
	}

	result, err := p.transcriber.Transcribe(ctx, job.Provider, job.AudioPath, job.CallID)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	enriched, err := stt.Enrich(ctx, p.logger, p.scorer, result)
	if err != nil {
		return fmt.Errorf("enriching transcription: %w", err)
	}

	data := enriched.Data
	data.Segments = analysis.PrepareSegments(data.Segments)

	findings := p.detector.Detect(data.Segments)
	summary := p.synthesizer.Synthesize(data, findings, enriched.Sentiment.Aggregate())

	transcript := &database.Transcript{
		CallID:    job.CallID,
		FullText:  data.FullTranscript,
		Duration:  data.Duration,
		Sentiment: enriched.Sentiment,
	}
	if err := p.store.SaveTranscript(ctx, transcript, database.NewUtterances(job.CallID, data.Segments)); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	if err := p.store.ReplaceMoments(ctx, job.CallID, database.NewMoments(job.CallID, findings)); err != nil {
		return fmt.Errorf("saving moments: %w", err)
	}
	if err := p.store.SaveSummary(ctx, database.NewSummary(job.CallID, summary)); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	if err := p.store.SetCallDuration(ctx, job.CallID, data.Duration); err != nil {
		return fmt.Errorf("recording call duration: %w", err)
	}
	if err := p.store.UpdateCallStatus(ctx, job.CallID, database.StatusCompleted); err != nil {
		return fmt.Errorf("marking call completed: %w", err)
	}

	for momentType, count := range countByType(findings) {
		metrics.RecordMomentsDetected(momentType, count)
	}
	metrics.RecordCallAnalyzed(summary.CallOutcome)

	p.publish("call.analyzed", job.CallID, map[string]interface{}{
		"call_id":      job.CallID,
		"call_outcome": summary.CallOutcome,
		"duration":     data.Duration,
		"utterances":   len(data.Segments),
		"moment_count": len(findings),
	})

	return nil
}

// runReanalyzeMoments re-runs detection over stored utterances and fully
// replaces the call's moment set.
func (p *Processor) runReanalyzeMoments(ctx context.Context, job *Job) error {
	utterances, err := p.store.GetUtterances(ctx, job.CallID)
	if err != nil {
		return fmt.Errorf("loading utterances: %w", err)
	}
	if len(utterances) == 0 {
		return errors.Wrap(errors.ErrTranscriptNotFound,
			fmt.Sprintf("call %s has no utterances to analyze", job.CallID))
	}

	segments := analysis.PrepareSegments(database.ToSegments(utterances))
	findings := p.detector.Detect(segments)

	if err := p.store.ReplaceMoments(ctx, job.CallID, database.NewMoments(job.CallID, findings)); err != nil {
		return fmt.Errorf("replacing moments: %w", err)
	}

	for momentType, count := range countByType(findings) {
		metrics.RecordMomentsDetected(momentType, count)
	}

	p.publish("moments.reanalyzed", job.CallID, map[string]interface{}{
		"call_id":      job.CallID,
		"moment_count": len(findings),
	})

	return nil
}

// runRegenerateSummary rebuilds the executive summary from the stored
// transcript, utterances, and moments.
func (p *Processor) runRegenerateSummary(ctx context.Context, job *Job) error {
	transcript, err := p.store.GetTranscript(ctx, job.CallID)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	utterances, err := p.store.GetUtterances(ctx, job.CallID)
	if err != nil {
		return fmt.Errorf("loading utterances: %w", err)
	}
	rows, err := p.store.GetMoments(ctx, job.CallID, database.MomentFilter{})
	if err != nil {
		return fmt.Errorf("loading moments: %w", err)
	}

	data := analysis.TranscriptData{
		FullTranscript: transcript.FullText,
		Segments:       analysis.PrepareSegments(database.ToSegments(utterances)),
		Duration:       transcript.Duration,
	}

	summary := p.synthesizer.Synthesize(data, database.ToMoments(rows), transcript.Sentiment.Aggregate())
	if err := p.store.SaveSummary(ctx, database.NewSummary(job.CallID, summary)); err != nil {
		return fmt.Errorf("replacing summary: %w", err)
	}

	p.publish("summary.regenerated", job.CallID, map[string]interface{}{
		"call_id":      job.CallID,
		"call_outcome": summary.CallOutcome,
	})

	return nil
}

// runRescoreSentiment re-scores every stored utterance and refreshes the
// call-level rollup. A scorer failure downgrades that utterance to neutral.
func (p *Processor) runRescoreSentiment(ctx context.Context, job *Job) error {
	utterances, err := p.store.GetUtterances(ctx, job.CallID)
	if err != nil {
		return fmt.Errorf("loading utterances: %w", err)
	}
	if len(utterances) == 0 {
		return errors.Wrap(errors.ErrTranscriptNotFound,
			fmt.Sprintf("call %s has no utterances to rescore", job.CallID))
	}

	results := make([]sentiment.Result, 0, len(utterances))
	for i := range utterances {
		res, err := p.scorer.Score(ctx, utterances[i].Text)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"call_id":  job.CallID,
				"position": utterances[i].Position,
			}).Warn("Sentiment scoring failed, treating utterance as neutral")
			res = sentiment.Neutral()
		}
		utterances[i].SentimentScore = res.Score
		utterances[i].SentimentLabel = res.Label
		results = append(results, res)
	}

	if err := p.store.UpdateSentiment(ctx, job.CallID, utterances, sentiment.Summarize(results)); err != nil {
		return fmt.Errorf("updating sentiment: %w", err)
	}

	return nil
}

func (p *Processor) publish(event, callID string, payload map[string]interface{}) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvent(event, callID, payload); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"event":   event,
			"call_id": callID,
		}).Warn("Event publish failed")
	}
}

func countByType(findings []analysis.CoachableMoment) map[string]int {
	counts := make(map[string]int, len(findings))
	for _, f := range findings {
		counts[f.MomentType]++
	}
	return counts
}

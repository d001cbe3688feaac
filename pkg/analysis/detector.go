package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/errors"
)

// Moment type vocabulary. Extending it means adding a detector, not
// configuration.
const (
	MomentObjection          = "objection"
	MomentBuyingSignal       = "buying_signal"
	MomentEmotionalPositive  = "emotional_positive"
	MomentEmotionalNegative  = "emotional_negative"
	MomentInformationRequest = "information_request"
	MomentHesitation         = "hesitation"
)

// CoachableMoment is one detected finding within a segment.
type CoachableMoment struct {
	MomentType        string   `json:"moment_type"`
	Confidence        float64  `json:"confidence"`
	StartTime         float64  `json:"start_time"`
	EndTime           float64  `json:"end_time"`
	Description       string   `json:"description"`
	TranscriptSegment string   `json:"transcript_segment"`
	Recommendations   []string `json:"recommendations"`
	SpeakerID         string   `json:"speaker_id"`
	SentimentScore    float64  `json:"sentiment_score"`
}

// Fixed coaching suggestions per moment type.
var (
	objectionRecommendations = []string{
		"Acknowledge the customer's concern",
		"Ask clarifying questions to understand the objection better",
		"Provide specific examples or case studies",
		"Address the root cause, not just the symptom",
	}
	buyingSignalRecommendations = []string{
		"Move quickly to close the deal",
		"Ask for the sale directly",
		"Address any remaining concerns",
		"Provide next steps and timeline",
	}
	emotionalRecommendations = []string{
		"Acknowledge the customer's emotions",
		"Show empathy and understanding",
		"Use this moment to build rapport",
		"Channel positive emotions into buying decisions",
	}
	informationRequestRecommendations = []string{
		"Provide clear, specific answers",
		"Use this opportunity to demonstrate expertise",
		"Ask follow-up questions to understand needs better",
		"Provide written documentation if possible",
	}
	hesitationRecommendations = []string{
		"Ask open-ended questions to understand concerns",
		"Provide reassurance and build confidence",
		"Address any doubts or objections",
		"Use social proof or testimonials",
	}
)

// keywordPattern pairs a configured keyword with its compiled
// word-boundary matcher so descriptions can name the evidence.
type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// Detector runs five independent rule analyzers over transcript segments.
// A single segment may yield zero, one, or several moments; the analyzers
// are not mutually exclusive. Detector instances are immutable after
// construction.
type Detector struct {
	logger *logrus.Logger

	objectionKeywords  []keywordPattern
	buyingKeywords     []keywordPattern
	emotionalPatterns  []*regexp.Regexp
	questionPatterns   []*regexp.Regexp
	hesitationPatterns []*regexp.Regexp
}

// NewDetector compiles the configured keyword and pattern tables into a
// ready-to-use detector.
func NewDetector(cfg DetectionConfig, logger *logrus.Logger) (*Detector, error) {
	d := &Detector{logger: logger}

	var err error
	if d.objectionKeywords, err = compileKeywords(cfg.ObjectionKeywords); err != nil {
		return nil, errors.Wrap(err, "compiling objection keywords")
	}
	if d.buyingKeywords, err = compileKeywords(cfg.BuyingSignalKeywords); err != nil {
		return nil, errors.Wrap(err, "compiling buying signal keywords")
	}
	if d.emotionalPatterns, err = compilePatterns(cfg.EmotionalPatterns); err != nil {
		return nil, errors.Wrap(err, "compiling emotional patterns")
	}
	if d.questionPatterns, err = compilePatterns(cfg.QuestionPatterns); err != nil {
		return nil, errors.Wrap(err, "compiling question patterns")
	}
	if d.hesitationPatterns, err = compilePatterns(cfg.HesitationPatterns); err != nil {
		return nil, errors.Wrap(err, "compiling hesitation patterns")
	}

	return d, nil
}

func compileKeywords(keywords []string) ([]keywordPattern, error) {
	compiled := make([]keywordPattern, 0, len(keywords))
	for _, kw := range keywords {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		compiled = append(compiled, keywordPattern{keyword: kw, re: re})
	}
	return compiled, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Detect scans each segment with every analyzer and returns all detected
// moments sorted ascending by start time. The sort is stable, so moments
// sharing a start time keep analyzer emission order: objection,
// buying_signal, emotional, information_request, hesitation.
func (d *Detector) Detect(segments []Segment) []CoachableMoment {
	d.logger.WithField("segment_count", len(segments)).Debug("Detecting coachable moments")

	moments := make([]CoachableMoment, 0)
	for _, seg := range segments {
		moments = append(moments, d.analyzeSegment(seg)...)
	}

	sort.SliceStable(moments, func(i, j int) bool {
		return moments[i].StartTime < moments[j].StartTime
	})

	d.logger.WithField("moment_count", len(moments)).Info("Coachable moment detection complete")
	return moments
}

func (d *Detector) analyzeSegment(seg Segment) []CoachableMoment {
	var moments []CoachableMoment

	if m, ok := d.detectObjection(seg); ok {
		moments = append(moments, m)
	}
	if m, ok := d.detectBuyingSignal(seg); ok {
		moments = append(moments, m)
	}
	if m, ok := d.detectEmotionalMoment(seg); ok {
		moments = append(moments, m)
	}
	if m, ok := d.detectInformationRequest(seg); ok {
		moments = append(moments, m)
	}
	if m, ok := d.detectHesitation(seg); ok {
		moments = append(moments, m)
	}

	return moments
}

func (d *Detector) detectObjection(seg Segment) (CoachableMoment, bool) {
	matched := matchKeywords(d.objectionKeywords, seg.Text)
	if len(matched) == 0 {
		return CoachableMoment{}, false
	}

	confidence := math.Min(0.9, 0.6+math.Abs(seg.SentimentScore)*0.3)

	return CoachableMoment{
		MomentType:        MomentObjection,
		Confidence:        confidence,
		StartTime:         seg.StartTime,
		EndTime:           seg.EndTime,
		Description:       fmt.Sprintf("Customer objection detected: %s", strings.Join(matched, ", ")),
		TranscriptSegment: seg.Text,
		Recommendations:   objectionRecommendations,
		SpeakerID:         seg.SpeakerID,
		SentimentScore:    seg.SentimentScore,
	}, true
}

func (d *Detector) detectBuyingSignal(seg Segment) (CoachableMoment, bool) {
	matched := matchKeywords(d.buyingKeywords, seg.Text)
	if len(matched) == 0 {
		return CoachableMoment{}, false
	}

	// Signed sentiment on purpose: a buying-signal keyword spoken with
	// negative sentiment is a weaker signal.
	confidence := math.Min(0.9, 0.7+seg.SentimentScore*0.2)

	return CoachableMoment{
		MomentType:        MomentBuyingSignal,
		Confidence:        confidence,
		StartTime:         seg.StartTime,
		EndTime:           seg.EndTime,
		Description:       fmt.Sprintf("Buying signal detected: %s", strings.Join(matched, ", ")),
		TranscriptSegment: seg.Text,
		Recommendations:   buyingSignalRecommendations,
		SpeakerID:         seg.SpeakerID,
		SentimentScore:    seg.SentimentScore,
	}, true
}

func (d *Detector) detectEmotionalMoment(seg Segment) (CoachableMoment, bool) {
	// One point per indicator group that matches, half a point per
	// exclamation mark. The score stays fractional.
	emotionalScore := 0.0
	for _, re := range d.emotionalPatterns {
		if re.MatchString(seg.Text) {
			emotionalScore++
		}
	}
	emotionalScore += float64(strings.Count(seg.Text, "!")) * 0.5

	if emotionalScore < 2 && math.Abs(seg.SentimentScore) <= 0.6 {
		return CoachableMoment{}, false
	}

	confidence := math.Min(0.9, 0.5+emotionalScore*0.2+math.Abs(seg.SentimentScore)*0.3)

	emotion := "negative"
	if seg.SentimentScore > 0 {
		emotion = "positive"
	}

	return CoachableMoment{
		MomentType:        "emotional_" + emotion,
		Confidence:        confidence,
		StartTime:         seg.StartTime,
		EndTime:           seg.EndTime,
		Description:       fmt.Sprintf("Strong %s emotional moment detected", emotion),
		TranscriptSegment: seg.Text,
		Recommendations:   emotionalRecommendations,
		SpeakerID:         seg.SpeakerID,
		SentimentScore:    seg.SentimentScore,
	}, true
}

func (d *Detector) detectInformationRequest(seg Segment) (CoachableMoment, bool) {
	for _, re := range d.questionPatterns {
		if !re.MatchString(seg.Text) {
			continue
		}

		return CoachableMoment{
			MomentType:        MomentInformationRequest,
			Confidence:        0.8,
			StartTime:         seg.StartTime,
			EndTime:           seg.EndTime,
			Description:       "Customer requesting specific information",
			TranscriptSegment: seg.Text,
			Recommendations:   informationRequestRecommendations,
			SpeakerID:         seg.SpeakerID,
			SentimentScore:    seg.SentimentScore,
		}, true
	}

	return CoachableMoment{}, false
}

func (d *Detector) detectHesitation(seg Segment) (CoachableMoment, bool) {
	hesitationScore := 0
	for _, re := range d.hesitationPatterns {
		hesitationScore += len(re.FindAllString(seg.Text, -1))
	}

	// Hesitation is only coachable when the response itself is curt;
	// fillers inside a long answer do not fire.
	if len(strings.Fields(seg.Text)) > 3 || hesitationScore == 0 {
		return CoachableMoment{}, false
	}

	return CoachableMoment{
		MomentType:        MomentHesitation,
		Confidence:        0.7,
		StartTime:         seg.StartTime,
		EndTime:           seg.EndTime,
		Description:       "Customer showing signs of hesitation or uncertainty",
		TranscriptSegment: seg.Text,
		Recommendations:   hesitationRecommendations,
		SpeakerID:         seg.SpeakerID,
		SentimentScore:    seg.SentimentScore,
	}, true
}

func matchKeywords(patterns []keywordPattern, text string) []string {
	var matched []string
	for _, kp := range patterns {
		if kp.re.MatchString(text) {
			matched = append(matched, kp.keyword)
		}
	}
	return matched
}

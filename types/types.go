package types

import "time"

// TargetBuffer is added to the measured narration length to get the
// duration every downstream step must cover.
const TargetBuffer = 0.5

// GenerationRequest is one topic submitted to the pipeline
type GenerationRequest struct {
	Topic string `json:"topic"`
}

// Origin records whether a plan field came from the model or a default
type Origin int

const (
	OriginParsed Origin = iota
	OriginDefault
)

func (o Origin) String() string {
	if o == OriginDefault {
		return "default"
	}
	return "parsed"
}

// ContentPlan is the narration script plus the footage search keyword
type ContentPlan struct {
	Script        string `json:"script"`
	Keyword       string `json:"keyword"`
	ScriptOrigin  Origin `json:"-"`
	KeywordOrigin Origin `json:"-"`
}

// Defaulted reports whether any field fell back to its default value
func (p ContentPlan) Defaulted() bool {
	return p.ScriptOrigin == OriginDefault || p.KeywordOrigin == OriginDefault
}

// AudioTrack is a synthesized narration file and its measured length
type AudioTrack struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// Target returns the authoritative video duration for this narration
func (a AudioTrack) Target() float64 {
	return a.Duration + TargetBuffer
}

// FootageCandidate is one stock clip returned by the footage provider
type FootageCandidate struct {
	ID       int     `json:"id"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// RenderedVideo is the finished output file
type RenderedVideo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Script   string  `json:"script"`
}

// Stage is a step of the generation state machine
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageSynthesizing Stage = "synthesizing"
	StageLocating     Stage = "locating"
	StageRendering    Stage = "rendering"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Terminal reports whether no further transitions follow this stage
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Result is the uniform outcome of one pipeline run.
// On success OutputPath and Script are set; on failure Error is.
type Result struct {
	RunID      string         `json:"run_id"`
	Topic      string         `json:"topic"`
	Stage      Stage          `json:"stage"`
	OutputPath string         `json:"output_path,omitempty"`
	Script     string         `json:"script,omitempty"`
	Keyword    string         `json:"keyword,omitempty"`
	Video      *RenderedVideo `json:"video,omitempty"`
	Error      string         `json:"error,omitempty"`
	FailedAt   Stage          `json:"failed_at,omitempty"`
}

// OK reports whether the run produced an output file
func (r *Result) OK() bool {
	return r != nil && r.Error == "" && r.OutputPath != ""
}

// ProgressEvent is one human-readable progress notification
type ProgressEvent struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RunRecord tracks one run submitted through the HTTP front
type RunRecord struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Stage       Stage           `json:"stage"`
	Events      []ProgressEvent `json:"events"`
	OutputPath  string          `json:"output_path,omitempty"`
	Script      string          `json:"script,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

// VideoMetadata holds upload metadata for the publish step
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
	PublishAt   string   `json:"publish_at,omitempty"`
}

// UploadReceipt records one completed upload
type UploadReceipt struct {
	VideoID    string `json:"video_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	PublishAt  string `json:"publish_at,omitempty"`
	VideoFile  string `json:"video_file"`
	UploadedAt string `json:"uploaded_at"`
}

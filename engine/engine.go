package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	plan "github.com/jianli1806/Autotok/01_plan"
	narrate "github.com/jianli1806/Autotok/02_narrate"
	footage "github.com/jianli1806/Autotok/03_footage"
	compose "github.com/jianli1806/Autotok/04_compose"
	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/media"
	"github.com/jianli1806/Autotok/metrics"
	"github.com/jianli1806/Autotok/types"
)

// ErrBusy is returned by TryRun and Start while another run is in flight
var ErrBusy = errors.New("a video is already being generated")

// Fixed scratch files, one of each per run
const (
	TempAudioName = "temp_audio.mp3"
	TempVideoName = "temp_video.mp4"
)

const maxFilenameTopic = 15

// ProgressFunc receives a human-readable message before each stage
type ProgressFunc func(stage types.Stage, message string)

// Planner produces the script and footage keyword for a topic
type Planner interface {
	Plan(ctx context.Context, topic string) (types.ContentPlan, error)
}

// Narrator speaks a script into an audio file
type Narrator interface {
	Synthesize(ctx context.Context, script, outPath string) (*types.AudioTrack, error)
}

// Locator finds and fetches a background clip
type Locator interface {
	Find(ctx context.Context, keyword string, minDuration float64) (*types.FootageCandidate, error)
	Download(ctx context.Context, c *types.FootageCandidate, outPath string) error
}

// Compositor renders the final video
type Compositor interface {
	Render(ctx context.Context, clipPath string, audio *types.AudioTrack, script string, target float64, outPath string) (*types.RenderedVideo, error)
}

// Deps are the four stage implementations an Engine sequences
type Deps struct {
	Planner    Planner
	Narrator   Narrator
	Locator    Locator
	Compositor Compositor
}

// Engine runs the topic-to-video pipeline, one run at a time
type Engine struct {
	cfg     *config.Config
	deps    Deps
	log     *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// New validates cfg and wires the production stages. A missing credential
// is reported here, before any stage can run.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := plan.NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init llm backend: %w", err)
	}

	runner := media.ExecRunner{}
	prober := media.NewProber(runner, cfg.Render.FFprobePath)

	return NewWithDeps(cfg, Deps{
		Planner:    plan.New(backend, log),
		Narrator:   narrate.New(cfg, runner, prober, log),
		Locator:    footage.New(cfg, log),
		Compositor: compose.New(cfg, runner, prober, log),
	}, log, m), nil
}

// NewWithDeps builds an Engine over caller-supplied stages
func NewWithDeps(cfg *config.Config, deps Deps, log *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		log:     log.With("component", "engine"),
		metrics: m,
	}
}

// Run generates one video for topic, waiting for any run in flight to
// finish first. It never returns nil and never panics: every failure is
// reported in the Result.
func (e *Engine) Run(ctx context.Context, topic string, progress ProgressFunc) *types.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx, newRunID(), topic, progress)
}

// TryRun is Run without waiting; it returns ErrBusy if a run is in flight.
func (e *Engine) TryRun(ctx context.Context, topic string, progress ProgressFunc) (*types.Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	defer e.mu.Unlock()
	return e.run(ctx, newRunID(), topic, progress), nil
}

// Start claims the engine and runs in the background. The run ID is known
// before the first stage starts; the result is delivered on the channel.
func (e *Engine) Start(ctx context.Context, topic string, progress ProgressFunc) (string, <-chan *types.Result, error) {
	if !e.mu.TryLock() {
		return "", nil, ErrBusy
	}
	runID := newRunID()
	done := make(chan *types.Result, 1)
	go func() {
		res := e.run(ctx, runID, topic, progress)
		e.mu.Unlock()
		done <- res
		close(done)
	}()
	return runID, done, nil
}

// MakeVideo is the caller-facing form of Run: the output path and script on
// success, or an empty path and the error message on failure.
func (e *Engine) MakeVideo(ctx context.Context, topic string, progress ProgressFunc) (outputPath, scriptOrError string, ok bool) {
	res := e.Run(ctx, topic, progress)
	if res.OK() {
		return res.OutputPath, res.Script, true
	}
	return "", res.Error, false
}

func (e *Engine) run(ctx context.Context, runID, topic string, progress ProgressFunc) (res *types.Result) {
	res = &types.Result{RunID: runID, Topic: topic, Stage: types.StagePlanning}
	log := e.log.With("run_id", runID, "topic", topic)
	started := time.Now()

	e.metrics.SetInFlight(true)
	defer e.metrics.SetInFlight(false)

	defer func() {
		if r := recover(); r != nil {
			e.fail(log, res, fmt.Errorf("panic: %v", r))
		}
		e.metrics.ObserveRun(res.OK())
		if res.OK() {
			log.Info("run complete", "output", res.OutputPath, "elapsed", time.Since(started).Round(time.Millisecond))
		}
	}()

	enter := func(s types.Stage, msg string) {
		res.Stage = s
		log.Info(msg, "stage", s)
		if progress != nil {
			progress(s, msg)
		}
	}

	// Temp names are fixed, so a crashed earlier run may have left them.
	workDir := e.cfg.Paths.Work
	audioPath := filepath.Join(workDir, TempAudioName)
	clipPath := filepath.Join(workDir, TempVideoName)
	defer removeTemp(log, audioPath)
	defer removeTemp(log, clipPath)

	if strings.TrimSpace(topic) == "" {
		e.fail(log, res, errors.New("topic is empty"))
		return res
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		e.fail(log, res, fmt.Errorf("create work dir: %w", err))
		return res
	}

	// STAGE 1: plan
	enter(types.StagePlanning, "Generating content strategy...")
	var cp types.ContentPlan
	err := e.stage(ctx, types.StagePlanning, e.cfg.Timeouts.Plan, func(ctx context.Context) error {
		var err error
		cp, err = e.deps.Planner.Plan(ctx, topic)
		return err
	})
	if err != nil {
		e.fail(log, res, err)
		return res
	}
	if cp.Defaulted() {
		e.metrics.IncPlanDefaults()
		log.Warn("content plan used defaults", "script", cp.ScriptOrigin, "keyword", cp.KeywordOrigin)
	}
	res.Script, res.Keyword = cp.Script, cp.Keyword

	// STAGE 2: narrate
	enter(types.StageSynthesizing, "Synthesizing audio...")
	var audio *types.AudioTrack
	err = e.stage(ctx, types.StageSynthesizing, e.cfg.Timeouts.Narrate, func(ctx context.Context) error {
		var err error
		audio, err = e.deps.Narrator.Synthesize(ctx, cp.Script, audioPath)
		return err
	})
	if err != nil {
		e.fail(log, res, err)
		return res
	}
	target := audio.Target()

	// STAGE 3: footage
	enter(types.StageLocating, fmt.Sprintf("Downloading visuals for '%s'...", cp.Keyword))
	err = e.stage(ctx, types.StageLocating, e.cfg.Timeouts.Locate, func(ctx context.Context) error {
		c, err := e.deps.Locator.Find(ctx, cp.Keyword, target)
		if err != nil {
			return err
		}
		return e.deps.Locator.Download(ctx, c, clipPath)
	})
	if err != nil {
		e.fail(log, res, err)
		return res
	}

	// STAGE 4: render
	enter(types.StageRendering, "Rendering video (this takes time)...")
	outPath := filepath.Join(e.cfg.Paths.Output, OutputFilename(topic))
	var video *types.RenderedVideo
	err = e.stage(ctx, types.StageRendering, e.cfg.Timeouts.Render, func(ctx context.Context) error {
		if err := os.MkdirAll(e.cfg.Paths.Output, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		var err error
		video, err = e.deps.Compositor.Render(ctx, clipPath, audio, cp.Script, target, outPath)
		return err
	})
	if err != nil {
		e.fail(log, res, err)
		return res
	}

	res.Stage = types.StageDone
	res.OutputPath = video.Path
	res.Video = video
	return res
}

// stage runs fn under the stage's timeout, if any, and records its duration
func (e *Engine) stage(ctx context.Context, s types.Stage, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	e.metrics.ObserveStage(string(s), time.Since(start))
	return err
}

func (e *Engine) fail(log *slog.Logger, res *types.Result, err error) {
	res.FailedAt = res.Stage
	res.Stage = types.StageFailed
	res.Error = err.Error()
	res.OutputPath = ""
	log.Error("run failed", "stage", res.FailedAt, "error", err)
}

// OutputFilename maps a topic to its output file name: spaces become
// underscores, apostrophes are dropped, path separators become underscores,
// and the topic part is cut to 15 characters.
func OutputFilename(topic string) string {
	name := strings.ReplaceAll(topic, " ", "_")
	name = strings.ReplaceAll(name, "'", "")
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	if r := []rune(name); len(r) > maxFilenameTopic {
		name = string(r[:maxFilenameTopic])
	}
	return "tiktok_" + name + ".mp4"
}

func removeTemp(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not remove temp file", "path", path, "error", err)
	}
}

func newRunID() string {
	return uuid.NewString()[:8]
}

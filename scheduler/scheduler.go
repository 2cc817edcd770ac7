package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/engine"
	"github.com/jianli1806/Autotok/types"
)

// Runner executes one pipeline run unless another is in flight
type Runner interface {
	TryRun(ctx context.Context, topic string, progress engine.ProgressFunc) (*types.Result, error)
}

// TopicSource suggests a fresh topic
type TopicSource interface {
	Suggest(ctx context.Context) (string, error)
}

// Publisher uploads a finished video
type Publisher interface {
	Publish(ctx context.Context, res *types.Result) (*types.UploadReceipt, error)
}

// ErrNoTopic is returned by Tick when neither the topic source nor the
// configured list yields a topic.
var ErrNoTopic = errors.New("no topic available")

// Scheduler generates videos on a cron schedule
type Scheduler struct {
	spec      string
	runner    Runner
	source    TopicSource
	publisher Publisher
	log       *slog.Logger

	mu     sync.Mutex
	topics []string
	next   int
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithTopicSource makes the scheduler ask src for a topic first; the
// configured list is the fallback.
func WithTopicSource(src TopicSource) Option {
	return func(s *Scheduler) { s.source = src }
}

// WithPublisher uploads every successful run through p
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// New validates the cron spec and topic configuration
func New(cfg config.ScheduleConfig, runner Runner, log *slog.Logger, opts ...Option) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Cron); err != nil {
		return nil, fmt.Errorf("schedule.cron %q: %w", cfg.Cron, err)
	}

	s := &Scheduler{
		spec:   cfg.Cron,
		runner: runner,
		log:    log.With("component", "scheduler"),
	}
	for _, t := range cfg.Topics {
		if t = strings.TrimSpace(t); t != "" {
			s.topics = append(s.topics, t)
		}
	}
	for _, o := range opts {
		o(s)
	}
	if s.source == nil && len(s.topics) == 0 {
		return nil, errors.New("schedule needs topics or a topic source")
	}
	return s, nil
}

// Run fires Tick on the schedule until ctx is cancelled. A tick that comes
// due while the previous one is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.log.Warn("scheduled run did not complete", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	c.Start()
	s.log.Info("scheduler started", "cron", s.spec, "topics", len(s.topics), "reddit", s.source != nil, "upload", s.publisher != nil)

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// Tick picks a topic, runs the pipeline once and publishes the result when
// a publisher is configured. engine.ErrBusy is returned untouched when a
// run is already in flight.
func (s *Scheduler) Tick(ctx context.Context) (*types.Result, error) {
	topic, err := s.nextTopic(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info("scheduled run starting", "topic", topic)
	res, err := s.runner.TryRun(ctx, topic, nil)
	if errors.Is(err, engine.ErrBusy) {
		s.log.Info("skipping scheduled run, pipeline busy", "topic", topic)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return res, fmt.Errorf("run %s failed at %s: %s", res.RunID, res.FailedAt, res.Error)
	}

	if s.publisher != nil {
		receipt, err := s.publisher.Publish(ctx, res)
		if err != nil {
			return res, fmt.Errorf("publish run %s: %w", res.RunID, err)
		}
		s.log.Info("scheduled video published", "run_id", res.RunID, "url", receipt.URL)
	}
	return res, nil
}

func (s *Scheduler) nextTopic(ctx context.Context) (string, error) {
	if s.source != nil {
		topic, err := s.source.Suggest(ctx)
		if err == nil {
			return topic, nil
		}
		s.log.Warn("topic source failed, using configured topics", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.topics) == 0 {
		return "", ErrNoTopic
	}
	topic := s.topics[s.next%len(s.topics)]
	s.next++
	return topic, nil
}

// cronLogger routes cron's own messages into slog
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

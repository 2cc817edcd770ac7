package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/engine"
	"github.com/jianli1806/Autotok/logger"
	"github.com/jianli1806/Autotok/types"
)

type fakeRunner struct {
	mu     sync.Mutex
	topics []string
	busy   bool
	fail   bool
}

func (f *fakeRunner) TryRun(ctx context.Context, topic string, progress engine.ProgressFunc) (*types.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return nil, engine.ErrBusy
	}
	f.topics = append(f.topics, topic)
	if f.fail {
		return &types.Result{RunID: "r", Topic: topic, Stage: types.StageFailed, FailedAt: types.StageRendering, Error: "ffmpeg died"}, nil
	}
	return &types.Result{RunID: "r", Topic: topic, Stage: types.StageDone, OutputPath: "/out/" + topic + ".mp4"}, nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakeSource struct {
	topic string
	err   error
}

func (f fakeSource) Suggest(ctx context.Context) (string, error) { return f.topic, f.err }

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, res *types.Result) (*types.UploadReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, res.OutputPath)
	return &types.UploadReceipt{VideoID: "v", URL: "https://www.youtube.com/shorts/v"}, nil
}

func schedule(topics ...string) config.ScheduleConfig {
	return config.ScheduleConfig{Enabled: true, Cron: "0 14 * * 2,5", Topics: topics}
}

func TestNew_validation(t *testing.T) {
	if _, err := New(config.ScheduleConfig{Cron: "not a cron", Topics: []string{"a"}}, &fakeRunner{}, logger.Discard()); err == nil {
		t.Error("expected error for a bad cron spec")
	}
	if _, err := New(schedule(" ", ""), &fakeRunner{}, logger.Discard()); err == nil {
		t.Error("expected error with no topics and no source")
	}
	if _, err := New(schedule(), &fakeRunner{}, logger.Discard(), WithTopicSource(fakeSource{topic: "x"})); err != nil {
		t.Errorf("a topic source alone is enough: %v", err)
	}
}

func TestTick_roundRobin(t *testing.T) {
	r := &fakeRunner{}
	s, err := New(schedule("Atomic Habits", "The Ocean"), r, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	got := r.calls()
	want := []string{"Atomic Habits", "The Ocean", "Atomic Habits"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTick_sourceFirstThenFallback(t *testing.T) {
	r := &fakeRunner{}
	s, _ := New(schedule("Fallback"), r, logger.Discard(), WithTopicSource(fakeSource{topic: "Sharks predate trees"}))
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	s2, _ := New(schedule("Fallback"), r, logger.Discard(), WithTopicSource(fakeSource{err: errors.New("reddit down")}))
	if _, err := s2.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := r.calls()
	if len(got) != 2 || got[0] != "Sharks predate trees" || got[1] != "Fallback" {
		t.Errorf("calls = %q", got)
	}

	s3, _ := New(schedule(), r, logger.Discard(), WithTopicSource(fakeSource{err: errors.New("reddit down")}))
	if _, err := s3.Tick(context.Background()); !errors.Is(err, ErrNoTopic) {
		t.Errorf("expected ErrNoTopic, got %v", err)
	}
}

func TestTick_busyIsSkipped(t *testing.T) {
	r := &fakeRunner{busy: true}
	p := &fakePublisher{}
	s, _ := New(schedule("a"), r, logger.Discard(), WithPublisher(p))
	if _, err := s.Tick(context.Background()); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if len(p.published) != 0 {
		t.Error("nothing should be published for a skipped run")
	}
}

func TestTick_publishesOnlySuccess(t *testing.T) {
	r := &fakeRunner{}
	p := &fakePublisher{}
	s, _ := New(schedule("a"), r, logger.Discard(), WithPublisher(p))

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.published) != 1 || p.published[0] != "/out/a.mp4" {
		t.Errorf("published = %q", p.published)
	}

	r.fail = true
	res, err := s.Tick(context.Background())
	if err == nil || res == nil || res.OK() {
		t.Fatalf("expected failed run, got %+v %v", res, err)
	}
	if len(p.published) != 1 {
		t.Error("failed runs must not be published")
	}

	r.fail = false
	p.err = errors.New("quota exceeded")
	if _, err := s.Tick(context.Background()); err == nil {
		t.Error("publish failure should be reported")
	}
}

func TestRun_firesAndStops(t *testing.T) {
	r := &fakeRunner{}
	cfg := schedule("a")
	cfg.Cron = "@every 1s"
	s, err := New(cfg, r, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.calls()) == 0 {
		t.Error("expected at least one scheduled run")
	}
}

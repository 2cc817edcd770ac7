package engine

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	plan "github.com/jianli1806/Autotok/01_plan"
	narrate "github.com/jianli1806/Autotok/02_narrate"
	footage "github.com/jianli1806/Autotok/03_footage"
	compose "github.com/jianli1806/Autotok/04_compose"
	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/logger"
	"github.com/jianli1806/Autotok/media"
)

type cannedBackend struct{ reply string }

func (b cannedBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return b.reply, nil
}

// toolbox stands in for edge-tts, ffprobe and ffmpeg. Probes are answered
// by file name; the synthesizer and encoder write their output file.
type toolbox struct {
	mu         sync.Mutex
	probes     map[string]string
	ffmpegArgs []string
}

func (tb *toolbox) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	last := args[len(args)-1]
	switch name {
	case "edge-tts":
		return nil, os.WriteFile(last, []byte("mp3"), 0644)
	case "ffprobe":
		out, ok := tb.probes[filepath.Base(last)]
		if !ok {
			return nil, fmt.Errorf("%s: no such file", last)
		}
		return []byte(out), nil
	case "ffmpeg":
		tb.ffmpegArgs = args
		return nil, os.WriteFile(last, []byte("mp4"), 0644)
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

// The Ocean: a 10 s narration over a 6 s clip loops once and trims to 10.5 s.
func TestScenario_theOcean(t *testing.T) {
	var searched string
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos/search":
			searched = r.URL.Query().Get("query")
			fmt.Fprintf(w, `{"videos":[{"id":7,"width":1920,"height":1080,"duration":6,
				"video_files":[{"id":70,"width":1920,"height":1080,"link":"http://%s/clip.mp4"}]}]}`, r.Host)
		case "/clip.mp4":
			_, _ = w.Write([]byte("fake mp4 bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer pexels.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Work = filepath.Join(dir, "work")
	cfg.Paths.Output = filepath.Join(dir, "out")
	cfg.Footage.BaseURL = pexels.URL
	cfg.Credentials.PexelsAPIKey = "pexels-key"

	probes := map[string]string{}
	probes[TempAudioName] = `{"streams":[{"codec_type":"audio"}],"format":{"duration":"10.000"}}`
	probes[TempVideoName] = `{"streams":[{"codec_type":"video","width":1920,"height":1080}],"format":{"duration":"6.000"}}`
	probes["tiktok_The_Ocean.mp4.part"] = `{"streams":[{"codec_type":"video","width":606,"height":1080},{"codec_type":"audio"}],"format":{"duration":"10.500"}}`
	tb := &toolbox{probes: probes}
	log := logger.Discard()
	prober := media.NewProber(tb, "ffprobe")
	reply := "Script: Oceans cover most of Earth. They hide mountains taller than Everest. Most of them remain unexplored.\nSearch: ocean"

	e := NewWithDeps(cfg, Deps{
		Planner:    plan.New(cannedBackend{reply: reply}, log),
		Narrator:   narrate.New(cfg, tb, prober, log),
		Locator:    footage.New(cfg, log),
		Compositor: compose.New(cfg, tb, prober, log),
	}, log, nil)

	res := e.Run(context.Background(), "The Ocean", nil)
	if !res.OK() {
		t.Fatalf("run failed: %+v", res)
	}
	if searched != "ocean" {
		t.Errorf("searched %q", searched)
	}
	if filepath.Base(res.OutputPath) != "tiktok_The_Ocean.mp4" {
		t.Errorf("output = %s", res.OutputPath)
	}
	if math.Abs(res.Video.Duration-10.5) > 0.05 {
		t.Errorf("duration = %v", res.Video.Duration)
	}
	if !strings.HasPrefix(res.Script, "Oceans cover most of Earth.") {
		t.Errorf("script = %q", res.Script)
	}

	args := strings.Join(tb.ffmpegArgs, " ")
	for _, want := range []string{"-stream_loop 1", "-t 10.500", "crop=606:1080:657:0"} {
		if !strings.Contains(args, want) {
			t.Errorf("ffmpeg args missing %q: %s", want, args)
		}
	}
	for _, name := range []string{TempAudioName, TempVideoName} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.Work, name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind", name)
		}
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/media"
	"github.com/jianli1806/Autotok/types"
)

// ErrNoVideoStream is returned when the downloaded clip has no video
var ErrNoVideoStream = errors.New("clip has no video stream")

// Compositor renders footage, narration and captions into one file
type Compositor struct {
	cfg    config.RenderConfig
	runner media.Runner
	prober *media.Prober
	log    *slog.Logger
}

// New creates a Compositor
func New(cfg *config.Config, runner media.Runner, prober *media.Prober, log *slog.Logger) *Compositor {
	return &Compositor{
		cfg:    cfg.Render,
		runner: runner,
		prober: prober,
		log:    log.With("component", "compose"),
	}
}

// RenderPlan is every numeric decision made before ffmpeg runs
type RenderPlan struct {
	ClipDuration float64
	Target       float64
	Loops        int
	Frame        Frame
	Lines        []string
}

// PlanRender decides looping, trimming, reframing and caption wrapping
func (c *Compositor) PlanRender(clip *media.Info, target float64, script string) (RenderPlan, error) {
	if !clip.HasVideo {
		return RenderPlan{}, ErrNoVideoStream
	}
	if clip.Duration <= 0 {
		return RenderPlan{}, fmt.Errorf("clip has non-positive duration %.3fs", clip.Duration)
	}
	if target <= 0 {
		return RenderPlan{}, fmt.Errorf("target duration must be positive, got %.3fs", target)
	}
	if clip.Width <= 0 || clip.Height <= 0 {
		return RenderPlan{}, fmt.Errorf("clip has invalid size %dx%d", clip.Width, clip.Height)
	}

	frame := Reframe(clip.Width, clip.Height)
	return RenderPlan{
		ClipDuration: clip.Duration,
		Target:       target,
		Loops:        LoopCount(clip.Duration, target),
		Frame:        frame,
		Lines:        WrapCaption(script, captionChars(frame.W, c.cfg.FontSize, c.cfg.CaptionWidth)),
	}, nil
}

// Render loops and trims the clip to target seconds, reframes it to 9:16,
// lays the narration under it and burns the script in as a caption.
// Nothing is left at outPath when it fails.
func (c *Compositor) Render(ctx context.Context, clipPath string, audio *types.AudioTrack, script string, target float64, outPath string) (*types.RenderedVideo, error) {
	info, err := c.prober.Probe(ctx, clipPath)
	if err != nil {
		return nil, fmt.Errorf("probe clip: %w", err)
	}
	plan, err := c.PlanRender(info, target, script)
	if err != nil {
		return nil, err
	}

	c.log.Info("rendering",
		"clip_duration", plan.ClipDuration,
		"target", plan.Target,
		"loops", plan.Loops,
		"source_size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"frame", fmt.Sprintf("%dx%d", plan.Frame.W, plan.Frame.H),
		"cropped", plan.Frame.Cropped,
		"caption_lines", len(plan.Lines),
	)

	captionDir, err := os.MkdirTemp("", "autotok-captions-*")
	if err != nil {
		return nil, fmt.Errorf("create caption dir: %w", err)
	}
	defer os.RemoveAll(captionDir)

	captionFiles, err := writeCaptionFiles(captionDir, plan.Lines)
	if err != nil {
		return nil, err
	}

	partPath := outPath + ".part"
	defer os.Remove(partPath)

	args := c.BuildArgs(plan, clipPath, audio.Path, captionFiles, partPath)
	if _, err := c.runner.Run(ctx, c.ffmpeg(), args...); err != nil {
		return nil, fmt.Errorf("ffmpeg render: %w", err)
	}

	out, err := c.prober.Probe(ctx, partPath)
	if err != nil {
		return nil, fmt.Errorf("probe rendered video: %w", err)
	}
	if err := os.Rename(partPath, outPath); err != nil {
		return nil, fmt.Errorf("move rendered video: %w", err)
	}

	video := &types.RenderedVideo{
		Path:     outPath,
		Duration: out.Duration,
		Width:    out.Width,
		Height:   out.Height,
		Script:   script,
	}
	c.log.Info("render complete", "path", outPath, "duration", video.Duration)
	return video, nil
}

// BuildArgs assembles the ffmpeg command line for a plan
func (c *Compositor) BuildArgs(plan RenderPlan, clipPath, audioPath string, captionFiles []string, outPath string) []string {
	var args []string
	args = append(args, "-y", "-hide_banner", "-loglevel", "error")
	if plan.Loops > 1 {
		// -stream_loop counts extra plays after the first
		args = append(args, "-stream_loop", strconv.Itoa(plan.Loops-1))
	}
	args = append(args,
		"-i", clipPath,
		"-i", audioPath,
		"-filter_complex", c.filterGraph(plan, captionFiles),
		"-map", "[v]",
		"-map", "[a]",
		"-t", formatSeconds(plan.Target),
		"-r", strconv.Itoa(c.cfg.FPS),
		"-c:v", c.cfg.VideoCodec,
		"-preset", c.cfg.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", c.cfg.AudioCodec,
		"-movflags", "+faststart",
		"-f", "mp4",
		outPath,
	)
	return args
}

func (c *Compositor) filterGraph(plan RenderPlan, captionFiles []string) string {
	var chain []string
	f := plan.Frame
	if f.Cropped {
		chain = append(chain, fmt.Sprintf("crop=%d:%d:%d:%d", f.W, f.H, f.X, f.Y))
	}
	if f.W%2 != 0 || f.H%2 != 0 {
		chain = append(chain, "scale=trunc(iw/2)*2:trunc(ih/2)*2")
	}
	chain = append(chain, c.drawText(captionFiles)...)
	chain = append(chain, fmt.Sprintf("fps=%d", c.cfg.FPS), "format=yuv420p")

	video := "[0:v]" + strings.Join(chain, ",") + "[v]"
	// Narration is shorter than the target by the buffer; pad it with silence.
	audio := "[1:a]apad[a]"
	return video + ";" + audio
}

func (c *Compositor) ffmpeg() string {
	if c.cfg.FFmpegPath != "" {
		return c.cfg.FFmpegPath
	}
	return "ffmpeg"
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func writeCaptionFiles(dir string, lines []string) ([]string, error) {
	files := make([]string, 0, len(lines))
	for i, line := range lines {
		p := filepath.Join(dir, fmt.Sprintf("line_%02d.txt", i))
		if err := os.WriteFile(p, []byte(line), 0644); err != nil {
			return nil, fmt.Errorf("write caption line: %w", err)
		}
		files = append(files, p)
	}
	return files, nil
}

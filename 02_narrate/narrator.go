package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/media"
	"github.com/jianli1806/Autotok/types"
)

// Narrator turns a script into a narration audio file
type Narrator struct {
	voice   string
	command string
	runner  media.Runner
	prober  *media.Prober
	log     *slog.Logger
}

// New creates a Narrator. cfg.Voice.Command, when set, replaces edge-tts
// and is called as: <command> --text "..." --output path.mp3
func New(cfg *config.Config, runner media.Runner, prober *media.Prober, log *slog.Logger) *Narrator {
	return &Narrator{
		voice:   cfg.Voice.Name,
		command: strings.TrimSpace(cfg.Voice.Command),
		runner:  runner,
		prober:  prober,
		log:     log.With("component", "narrate"),
	}
}

// Synthesize speaks the script into outPath and measures the result.
// It blocks until the speech service has written the whole file.
func (n *Narrator) Synthesize(ctx context.Context, script, outPath string) (*types.AudioTrack, error) {
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("synthesize narration: empty script")
	}

	name, args := n.buildCommand(script, outPath)
	n.log.Info("synthesizing narration", "voice", n.voice, "engine", name, "output", outPath)

	if _, err := n.runner.Run(ctx, name, args...); err != nil {
		return nil, fmt.Errorf("synthesize narration: %w", err)
	}

	info, err := n.prober.Probe(ctx, outPath)
	if err != nil {
		return nil, fmt.Errorf("measure narration: %w", err)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("measure narration: non-positive duration %.3fs", info.Duration)
	}

	track := &types.AudioTrack{Path: outPath, Duration: info.Duration}
	n.log.Info("narration ready", "duration", track.Duration, "target", track.Target())
	return track, nil
}

func (n *Narrator) buildCommand(text, outFile string) (string, []string) {
	switch {
	case n.command == "" || n.command == "edge-tts":
		return "edge-tts", []string{
			"--voice", n.voice,
			"--text", text,
			"--write-media", outFile,
		}
	case strings.HasSuffix(n.command, ".py"):
		return "python3", []string{n.command, "--text", text, "--output", outFile}
	default:
		return n.command, []string{"--text", text, "--output", outFile}
	}
}

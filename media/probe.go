package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Info is what the pipeline needs to know about a media file
type Info struct {
	Duration float64
	// Width and Height are the displayed size, after any rotation ffmpeg
	// applies on decode.
	Width    int
	Height   int
	Rotation int
	HasVideo bool
	HasAudio bool
}

// Prober reads stream information with ffprobe
type Prober struct {
	runner Runner
	bin    string
}

// NewProber creates a Prober; bin defaults to "ffprobe"
func NewProber(runner Runner, bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{runner: runner, bin: bin}
}

// Probe returns duration and, for video files, the first video stream's size
func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	out, err := p.runner.Run(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	info, err := ParseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return info, nil
}

type probeJSON struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation *float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbe decodes ffprobe's JSON output
func ParseProbe(data []byte) (*Info, error) {
	var raw probeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	d := strings.TrimSpace(raw.Format.Duration)
	if d == "" || d == "N/A" {
		return nil, errors.New("ffprobe reported no duration")
	}
	dur, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return nil, fmt.Errorf("parse duration %q: %w", d, err)
	}

	info := &Info{Duration: dur}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.Rotation = normalizeRotation(s.Tags.Rotate)
			for _, sd := range s.SideDataList {
				if sd.Rotation != nil {
					info.Rotation = normalizeDegrees(*sd.Rotation)
				}
			}
			if info.Rotation == 90 || info.Rotation == 270 {
				info.Width, info.Height = info.Height, info.Width
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

func normalizeRotation(tag string) int {
	deg, err := strconv.ParseFloat(strings.TrimSpace(tag), 64)
	if err != nil {
		return 0
	}
	return normalizeDegrees(deg)
}

// normalizeDegrees maps an angle onto 0, 90, 180 or 270
func normalizeDegrees(deg float64) int {
	r := int(math.Round(deg/90)) * 90 % 360
	if r < 0 {
		r += 360
	}
	return r
}

package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/types"
)

const (
	titleMaxRunes = 100
	maxTags       = 15
	shortsTag     = "#Shorts"
)

// BuildMetadata derives upload metadata from the run's topic, script and
// footage keyword. now is used only when publishing is scheduled.
func BuildMetadata(cfg config.UploadConfig, topic, script, keyword string, now time.Time) (*types.VideoMetadata, error) {
	title := strings.TrimSpace(topic)
	if title == "" {
		return nil, errors.New("build metadata: empty topic")
	}
	title = clip(title, titleMaxRunes-len(" "+shortsTag)) + " " + shortsTag

	var desc strings.Builder
	desc.WriteString(strings.TrimSpace(script))
	desc.WriteString("\n\n")
	desc.WriteString(hashtags(topic, keyword))

	meta := &types.VideoMetadata{
		Title:       title,
		Description: desc.String(),
		Tags:        buildTags(topic, keyword, cfg.ExtraTags),
		CategoryID:  cfg.CategoryID,
		Visibility:  cfg.Visibility,
	}

	if cfg.SchedulePublish && cfg.Visibility == "public" {
		at, err := NextPublishTime(now, cfg.PublishDays, cfg.PublishHour, cfg.PublishTimezone)
		if err != nil {
			return nil, err
		}
		// YouTube only honours publishAt on private videos
		meta.Visibility = "private"
		meta.PublishAt = at.UTC().Format(time.RFC3339)
	}
	return meta, nil
}

// NextPublishTime returns the first of days, strictly after today, at hour
// o'clock in the named zone.
func NextPublishTime(now time.Time, days []string, hour int, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("publish timezone: %w", err)
	}
	want := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wd, ok := parseWeekday(d)
		if !ok {
			return time.Time{}, fmt.Errorf("unknown publish day %q", d)
		}
		want[wd] = true
	}
	if len(want) == 0 {
		return time.Time{}, errors.New("no publish days configured")
	}

	local := now.In(loc)
	for i := 1; i <= 7; i++ {
		c := local.AddDate(0, 0, i)
		if want[c.Weekday()] {
			return time.Date(c.Year(), c.Month(), c.Day(), hour, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, errors.New("no publish day within a week")
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

func buildTags(topic, keyword string, extra []string) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		k := strings.ToLower(t)
		if t == "" || seen[k] || len(tags) >= maxTags {
			return
		}
		seen[k] = true
		tags = append(tags, t)
	}

	add("Shorts")
	add(keyword)
	add(topic)
	for _, t := range extra {
		add(t)
	}
	for _, w := range strings.Fields(topic) {
		if w = strings.TrimFunc(w, isPunct); len([]rune(w)) > 3 {
			add(strings.ToLower(w))
		}
	}
	return tags
}

func hashtags(topic, keyword string) string {
	out := []string{shortsTag}
	for _, s := range []string{keyword, topic} {
		if h := hashtag(s); h != "" && h != out[len(out)-1] {
			out = append(out, h)
		}
	}
	return strings.Join(out, " ")
}

// hashtag turns "deep sea creatures" into "#DeepSeaCreatures"
func hashtag(s string) string {
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		r := []rune(strings.TrimFunc(w, isPunct))
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		for _, c := range r {
			if unicode.IsLetter(c) || unicode.IsDigit(c) {
				b.WriteRune(c)
			}
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

func isPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jianli1806/Autotok/types"
)

// Fallback values used when the model reply lacks a labelled line
const (
	DefaultScript  = "This is a default script because the AI response was too short. Please try again."
	DefaultKeyword = "abstract background"
)

const (
	scriptLabel = "Script:"
	searchLabel = "Search:"
)

const promptTemplate = `Topic: '%s'.
Task 1: Write an engaging TikTok script (approx 40-60 words). Don't just write a headline, write 3 full sentences explaining why this topic is interesting. No emojis, no hashtags, just the spoken text.
Task 2: Provide 1 simple, broad visual keyword to search for a background video (e.g., 'ocean', 'city', 'forest', 'technology').
Format your answer exactly like this:
Script: [Your script here]
Search: [Your search keyword here]`

// Backend sends one prompt to a text-generation service
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Planner turns a topic into a narration script and a footage keyword
type Planner struct {
	backend Backend
	log     *slog.Logger
}

// New creates a Planner over the given backend
func New(backend Backend, log *slog.Logger) *Planner {
	return &Planner{backend: backend, log: log.With("component", "plan")}
}

// Plan makes exactly one backend call. A malformed reply never fails: the
// missing fields take their defaults. Only a failed call is returned as an
// error.
func (p *Planner) Plan(ctx context.Context, topic string) (types.ContentPlan, error) {
	p.log.Info("analyzing topic", "topic", topic)

	reply, err := p.backend.Complete(ctx, BuildPrompt(topic))
	if err != nil {
		return types.ContentPlan{}, fmt.Errorf("generate content plan: %w", err)
	}

	plan := Parse(reply)
	p.log.Info("content plan ready",
		"words", len(strings.Fields(plan.Script)),
		"script", plan.Script,
		"keyword", plan.Keyword,
		"script_origin", plan.ScriptOrigin.String(),
		"keyword_origin", plan.KeywordOrigin.String(),
	)
	if plan.Defaulted() {
		p.log.Warn("model reply was malformed, using defaults", "reply", truncate(reply, 200))
	}
	return plan, nil
}

// BuildPrompt fills the instruction template with the topic
func BuildPrompt(topic string) string {
	return fmt.Sprintf(promptTemplate, topic)
}

// Parse scans the reply line by line for the Script: and Search: labels.
// A line carrying Script: is never also read as Search:. Later lines win;
// labels with an empty value are ignored.
func Parse(reply string) types.ContentPlan {
	plan := types.ContentPlan{
		Script:        DefaultScript,
		Keyword:       DefaultKeyword,
		ScriptOrigin:  types.OriginDefault,
		KeywordOrigin: types.OriginDefault,
	}

	for _, line := range strings.Split(reply, "\n") {
		switch {
		case strings.Contains(line, scriptLabel):
			if v := labelValue(line, scriptLabel); v != "" {
				plan.Script = v
				plan.ScriptOrigin = types.OriginParsed
			}
		case strings.Contains(line, searchLabel):
			if v := labelValue(line, searchLabel); v != "" {
				plan.Keyword = v
				plan.KeywordOrigin = types.OriginParsed
			}
		}
	}
	return plan
}

// labelValue returns the text between the first occurrence of label and
// the next one, without surrounding space or markdown bold markers.
func labelValue(line, label string) string {
	parts := strings.SplitN(line, label, 3)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[1]), "*"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

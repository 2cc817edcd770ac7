package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/jianli1806/Autotok/config"
)

// ErrNoTopics is returned when every fetched post was filtered out or used
var ErrNoTopics = errors.New("no usable topics found")

const maxTopicRunes = 80

// tilPrefixes are stripped from titles, longest first
var tilPrefixes = []string{"til that", "til:", "til -", "til"}

// Source suggests video topics from a subreddit's top posts
type Source struct {
	client    *reddit.Client
	subreddit string
	window    string
	limit     int
	minScore  int
	log       *slog.Logger

	mu   sync.Mutex
	used map[string]bool
}

// New creates a Source over reddit's public read-only API
func New(cfg *config.Config, log *slog.Logger, opts ...reddit.Opt) (*Source, error) {
	opts = append([]reddit.Opt{reddit.WithUserAgent(cfg.Topics.UserAgent)}, opts...)
	client, err := reddit.NewReadonlyClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Source{
		client:    client,
		subreddit: cfg.Topics.Subreddit,
		window:    cfg.Topics.Window,
		limit:     cfg.Topics.Limit,
		minScore:  cfg.Topics.MinScore,
		log:       log.With("component", "topics"),
		used:      make(map[string]bool),
	}, nil
}

// Suggest returns the best post title not suggested before by this Source
func (s *Source) Suggest(ctx context.Context) (string, error) {
	posts, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post, topic, ok := PickTopic(posts, s.used, s.minScore)
	if !ok {
		return "", fmt.Errorf("r/%s: %w", s.subreddit, ErrNoTopics)
	}
	s.used[post.ID] = true
	s.log.Info("topic selected", "topic", topic, "post_id", post.ID, "score", post.Score)
	return topic, nil
}

// Candidates lists every usable topic without marking any as used
func (s *Source) Candidates(ctx context.Context) ([]string, error) {
	posts, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range posts {
		if usable(p, s.minScore) {
			if t := CleanTitle(p.Title); t != "" {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (s *Source) fetch(ctx context.Context) ([]*reddit.Post, error) {
	posts, _, err := s.client.Subreddit.TopPosts(ctx, s.subreddit, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: s.limit},
		Time:        s.window,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s top posts: %w", s.subreddit, err)
	}
	s.log.Debug("fetched posts", "subreddit", s.subreddit, "count", len(posts))
	return posts, nil
}

// PickTopic returns the first usable post, in listing order, that is not in
// used, along with its cleaned title.
func PickTopic(posts []*reddit.Post, used map[string]bool, minScore int) (*reddit.Post, string, bool) {
	for _, p := range posts {
		if !usable(p, minScore) || used[p.ID] {
			continue
		}
		if topic := CleanTitle(p.Title); topic != "" {
			return p, topic, true
		}
	}
	return nil, "", false
}

func usable(p *reddit.Post, minScore int) bool {
	return p != nil && !p.Stickied && !p.NSFW && p.Score >= minScore
}

// CleanTitle strips a leading "TIL"/"TIL that", trailing punctuation and
// surrounding space, upper-cases the first letter and cuts the result to
// 80 characters on a word boundary where possible.
func CleanTitle(title string) string {
	t := strings.TrimSpace(title)
	lower := strings.ToLower(t)
	for _, p := range tilPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := t[len(p):]
		// word prefixes must end at a word boundary: "TILapia", "TIL thatch"
		if rest != "" && unicode.IsLetter(rune(p[len(p)-1])) && !unicode.IsSpace(rune(rest[0])) {
			continue
		}
		t = strings.TrimSpace(rest)
		break
	}
	t = strings.TrimRight(t, ".!?;: ")

	r := []rune(t)
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	if len(r) > maxTopicRunes {
		r = r[:maxTopicRunes]
		if i := lastSpace(r); i > maxTopicRunes/2 {
			r = r[:i]
		}
	}
	return strings.TrimSpace(string(r))
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}

package footage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/types"
)

// ErrNoFootage is returned when the provider has nothing usable for a keyword
var ErrNoFootage = errors.New("no footage found")

// Video is one Pexels search result
type Video struct {
	ID         int         `json:"id"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Duration   float64     `json:"duration"`
	URL        string      `json:"url"`
	VideoFiles []VideoFile `json:"video_files"`
}

// VideoFile is one downloadable rendition of a Video
type VideoFile struct {
	ID       int    `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

type searchResponse struct {
	Page         int     `json:"page"`
	PerPage      int     `json:"per_page"`
	TotalResults int     `json:"total_results"`
	Videos       []Video `json:"videos"`
}

// Locator searches Pexels for vertical stock clips
type Locator struct {
	baseURL     string
	apiKey      string
	perPage     int
	orientation string
	httpClient  *http.Client
	log         *slog.Logger
}

// New creates a Locator. Requests carry no client timeout; callers bound
// them through the context.
func New(cfg *config.Config, log *slog.Logger) *Locator {
	return &Locator{
		baseURL:     strings.TrimRight(cfg.Footage.BaseURL, "/"),
		apiKey:      cfg.Credentials.PexelsAPIKey,
		perPage:     cfg.Footage.PerPage,
		orientation: cfg.Footage.Orientation,
		httpClient:  &http.Client{},
		log:         log.With("component", "footage"),
	}
}

// Find returns the first result at least minDuration seconds long, or the
// first result when none is long enough.
func (l *Locator) Find(ctx context.Context, keyword string, minDuration float64) (*types.FootageCandidate, error) {
	videos, err := l.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}

	c, ok := Select(videos, minDuration)
	if !ok {
		return nil, fmt.Errorf("search %q: %w", keyword, ErrNoFootage)
	}
	l.log.Info("footage selected",
		"keyword", keyword,
		"candidates", len(videos),
		"id", c.ID,
		"duration", c.Duration,
		"min_duration", minDuration,
		"size", fmt.Sprintf("%dx%d", c.Width, c.Height),
	)
	return c, nil
}

// Search runs one provider query
func (l *Locator) Search(ctx context.Context, keyword string) ([]Video, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", strconv.Itoa(l.perPage))
	q.Set("orientation", l.orientation)
	endpoint := l.baseURL + "/videos/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", l.apiKey)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pexels search: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parse pexels response: %w", err)
	}
	return sr.Videos, nil
}

// Select applies first-fit selection in provider order. Videos without a
// downloadable file are skipped. It reports false only when nothing usable
// remains.
func Select(videos []Video, minDuration float64) (*types.FootageCandidate, bool) {
	var first *types.FootageCandidate
	for _, v := range videos {
		c, ok := candidate(v)
		if !ok {
			continue
		}
		if c.Duration >= minDuration {
			return c, true
		}
		if first == nil {
			first = c
		}
	}
	// Too short is fine: the compositor loops the clip.
	return first, first != nil
}

func candidate(v Video) (*types.FootageCandidate, bool) {
	if len(v.VideoFiles) == 0 || v.VideoFiles[0].Link == "" {
		return nil, false
	}
	f := v.VideoFiles[0]
	w, h := f.Width, f.Height
	if w == 0 || h == 0 {
		w, h = v.Width, v.Height
	}
	return &types.FootageCandidate{
		ID:       v.ID,
		URL:      f.Link,
		Duration: v.Duration,
		Width:    w,
		Height:   h,
	}, true
}

// Download writes the candidate's file to outPath. The file is closed
// before Download returns.
func (l *Locator) Download(ctx context.Context, c *types.FootageCandidate, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download footage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download footage: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	if n == 0 {
		return fmt.Errorf("download footage: empty body from %s", c.URL)
	}

	l.log.Info("footage downloaded", "path", outPath, "bytes", n)
	return nil
}

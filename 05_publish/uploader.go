package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/types"
)

// Uploader publishes rendered videos through the YouTube Data API v3
type Uploader struct {
	cfg config.UploadConfig
	svc *youtube.Service
	log *slog.Logger
	now func() time.Time
}

// New authenticates with the refresh token from cfg and creates an Uploader
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Uploader, error) {
	if err := cfg.ValidateUpload(); err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     cfg.Credentials.YouTubeClientID,
		ClientSecret: cfg.Credentials.YouTubeClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: cfg.Credentials.YouTubeRefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return NewWithService(svc, cfg, log), nil
}

// NewWithService creates an Uploader over an existing service client
func NewWithService(svc *youtube.Service, cfg *config.Config, log *slog.Logger) *Uploader {
	return &Uploader{
		cfg: cfg.Upload,
		svc: svc,
		log: log.With("component", "publish"),
		now: time.Now,
	}
}

// Publish builds metadata for a finished run and uploads its video
func (u *Uploader) Publish(ctx context.Context, res *types.Result) (*types.UploadReceipt, error) {
	if !res.OK() {
		return nil, fmt.Errorf("publish: run %s has no output", res.RunID)
	}
	meta, err := BuildMetadata(u.cfg, res.Topic, res.Script, res.Keyword, u.now())
	if err != nil {
		return nil, err
	}
	return u.Upload(ctx, res.OutputPath, meta)
}

// Upload sends videoFile with meta and returns the new video's ID and URL
func (u *Uploader) Upload(ctx context.Context, videoFile string, meta *types.VideoMetadata) (*types.UploadReceipt, error) {
	f, err := os.Open(videoFile)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		u.log.Info("uploading", "title", meta.Title, "size_mb", fmt.Sprintf("%.1f", float64(fi.Size())/1024/1024))
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      u.cfg.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Visibility,
			PublishAt:               meta.PublishAt,
			SelfDeclaredMadeForKids: u.cfg.MadeForKids,
		},
	}

	call := u.svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(u.cfg.NotifySubscribers).
		Media(f).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}

	receipt := &types.UploadReceipt{
		VideoID:    uploaded.Id,
		URL:        "https://www.youtube.com/shorts/" + uploaded.Id,
		Title:      meta.Title,
		PublishAt:  meta.PublishAt,
		VideoFile:  videoFile,
		UploadedAt: u.now().UTC().Format(time.RFC3339),
	}
	u.log.Info("upload complete", "video_id", receipt.VideoID, "url", receipt.URL, "publish_at", receipt.PublishAt)
	return receipt, nil
}

// WriteReceipt saves an upload record next to the video it describes
func WriteReceipt(dir string, r *types.UploadReceipt) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "upload_"+r.VideoID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write upload receipt: %w", err)
	}
	return path, nil
}

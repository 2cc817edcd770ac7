package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	topics "github.com/jianli1806/Autotok/00_topics"
	publish "github.com/jianli1806/Autotok/05_publish"
	"github.com/jianli1806/Autotok/config"
	"github.com/jianli1806/Autotok/engine"
	"github.com/jianli1806/Autotok/logger"
	"github.com/jianli1806/Autotok/metrics"
	"github.com/jianli1806/Autotok/scheduler"
	"github.com/jianli1806/Autotok/server"
	"github.com/jianli1806/Autotok/types"
)

type options struct {
	topic      string
	configPath string
	envPath    string
	reddit     bool
	upload     bool
	serve      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.topic, "topic", "", "topic to make a video about (or pass it as the first argument)")
	flag.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	flag.StringVar(&opts.envPath, "env", ".env", "path to the .env file with API keys")
	flag.BoolVar(&opts.reddit, "reddit", false, "take the topic from the configured subreddit's top posts")
	flag.BoolVar(&opts.upload, "upload", false, "upload the finished video to YouTube")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP API (and the scheduler when enabled)")
	flag.Parse()
	if opts.topic == "" && flag.NArg() > 0 {
		opts.topic = strings.Join(flag.Args(), " ")
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "autotok:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// Load .env (local dev only; deployments set the environment directly)
	if err := config.LoadEnv(opts.envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envPath, err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	eng, err := engine.New(ctx, cfg, log, met)
	if err != nil {
		return err
	}

	if opts.serve {
		return serve(ctx, cfg, opts, eng, log, met)
	}
	return once(ctx, cfg, opts, eng, log)
}

// once generates a single video in the foreground
func once(ctx context.Context, cfg *config.Config, opts options, eng *engine.Engine, log *slog.Logger) error {
	topic := strings.TrimSpace(opts.topic)
	if topic == "" && opts.reddit {
		src, err := topics.New(cfg, log)
		if err != nil {
			return err
		}
		if topic, err = src.Suggest(ctx); err != nil {
			return err
		}
	}
	if topic == "" {
		return errors.New("no topic: pass -topic, a positional topic, -reddit or -serve")
	}

	var uploader *publish.Uploader
	if opts.upload {
		// fail on missing YouTube credentials before spending a render
		var err error
		if uploader, err = publish.New(ctx, cfg, log); err != nil {
			return err
		}
	}

	res := eng.Run(ctx, topic, func(stage types.Stage, msg string) {
		fmt.Println(msg)
	})
	if !res.OK() {
		return fmt.Errorf("generation failed at %s: %s", res.FailedAt, res.Error)
	}
	fmt.Printf("Video: %s\nScript: %s\n", res.OutputPath, res.Script)

	if uploader == nil {
		return nil
	}
	receipt, err := uploader.Publish(ctx, res)
	if err != nil {
		return err
	}
	if _, err := publish.WriteReceipt(cfg.Paths.Output, receipt); err != nil {
		log.Warn("could not save upload receipt", "error", err)
	}
	fmt.Printf("Uploaded: %s\n", receipt.URL)
	return nil
}

// serve runs the HTTP front and, when enabled, the scheduler until a
// shutdown signal arrives or one of them fails.
func serve(ctx context.Context, cfg *config.Config, opts options, eng *engine.Engine, log *slog.Logger, met *metrics.Metrics) error {
	g, gctx := errgroup.WithContext(ctx)

	runs := server.NewRegistry(cfg.Server.HistorySize)
	h := server.NewHandler(gctx, eng, runs, log)
	router := server.NewRouter(h, log, met)
	g.Go(func() error {
		return server.Serve(gctx, ":"+cfg.Server.Port, router, log)
	})

	if cfg.Schedule.Enabled {
		var schedOpts []scheduler.Option
		if opts.reddit {
			src, err := topics.New(cfg, log)
			if err != nil {
				return err
			}
			schedOpts = append(schedOpts, scheduler.WithTopicSource(src))
		}
		if cfg.Schedule.Upload || opts.upload {
			uploader, err := publish.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			schedOpts = append(schedOpts, scheduler.WithPublisher(receiptWriter{uploader, cfg.Paths.Output, log}))
		}
		sched, err := scheduler.New(cfg.Schedule, eng, log, schedOpts...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	return g.Wait()
}

// receiptWriter saves an upload receipt after each scheduled publish
type receiptWriter struct {
	up  *publish.Uploader
	dir string
	log *slog.Logger
}

func (w receiptWriter) Publish(ctx context.Context, res *types.Result) (*types.UploadReceipt, error) {
	receipt, err := w.up.Publish(ctx, res)
	if err != nil {
		return nil, err
	}
	if path, err := publish.WriteReceipt(w.dir, receipt); err != nil {
		w.log.Warn("could not save upload receipt", "error", err)
	} else {
		w.log.Info("upload receipt saved", "path", path)
	}
	return receipt, nil
}

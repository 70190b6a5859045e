// Entry point for the lessonpipe converter — batch conversion of lesson
// documents and an HTTP upload service over the same pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/digimakers/lessonpipe/cleaner"
	"github.com/digimakers/lessonpipe/llm"
	"github.com/digimakers/lessonpipe/pipeline"
	"github.com/digimakers/lessonpipe/render"
	"github.com/digimakers/lessonpipe/server"
	"github.com/digimakers/lessonpipe/store"
)

// fileConfig is the optional YAML configuration file.
type fileConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Model       string `yaml:"model"`
	DBPath      string `yaml:"db"`
	Port        string `yaml:"port"`

	Cleaner struct {
		Binary    string `yaml:"binary"`
		BundleDir string `yaml:"bundle_dir"`
		ScriptDir string `yaml:"script_dir"`
	} `yaml:"cleaner"`

	Render struct {
		PrintURL  string `yaml:"print_url"`
		RemoteURL string `yaml:"remote_url"`
		PoolSize  int    `yaml:"pool_size"`
	} `yaml:"render"`
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(env("LESSONPIPE_CONFIG", "lessonpipe.yaml"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "convert":
		runConvert(ctx, cfg, logger, os.Args[2:])
	case "serve":
		runServe(ctx, cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  lessonpipe convert [-r] [-force] [-pdf] [-c n] [-o dir] <file-or-directory>
  lessonpipe serve`)
}

// loadConfig reads the YAML config file. A missing file is not an error:
// everything has a default or an environment override.
func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// buildConverter wires the cleaner and LLM client into a pipeline converter.
func buildConverter(cfg *fileConfig, logger *slog.Logger) (*pipeline.Converter, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	gen := llm.New(llm.Config{
		APIKey: apiKey,
		Model:  env("GEMINI_MODEL", cfg.Model),
		Logger: logger,
	})
	cl := cleaner.New(cleaner.Config{
		BinaryPath: cfg.Cleaner.Binary,
		BundleDir:  cfg.Cleaner.BundleDir,
		ScriptDir:  cfg.Cleaner.ScriptDir,
		Logger:     logger,
	})
	return pipeline.New(cl, gen, pipeline.Config{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}), nil
}

func openStore(cfg *fileConfig) (*store.Store, error) {
	path := env("LESSONPIPE_DB", cfg.DBPath)
	if path == "" {
		path = "lessonpipe.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

func startRenderer(ctx context.Context, cfg *fileConfig, logger *slog.Logger) (*render.Browser, error) {
	b := render.NewBrowser(render.Config{
		PrintURL:  env("PRINT_URL", cfg.Render.PrintURL),
		RemoteURL: env("BROWSER_URL", cfg.Render.RemoteURL),
		PoolSize:  cfg.Render.PoolSize,
		Logger:    logger,
	})
	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// runConvert converts documents on disk and writes one JSON file per lesson,
// plus a PDF when -pdf is set.
func runConvert(ctx context.Context, cfg *fileConfig, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	recursive := fs.Bool("r", false, "recurse into subdirectories")
	force := fs.Bool("force", false, "reconvert documents already converted successfully")
	pdf := fs.Bool("pdf", false, "also render a PDF per lesson")
	outDir := fs.String("o", "out", "output directory")
	concurrency := fs.Int("c", cfg.Concurrency, "concurrent conversions")
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	target := fs.Arg(0)
	cfg.Concurrency = *concurrency

	files, err := pipeline.FindDocxFiles(target, *recursive)
	if err != nil {
		slog.Error("discover documents", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		slog.Error("no documents found", "target", target)
		os.Exit(1)
	}

	conv, err := buildConverter(cfg, logger)
	if err != nil {
		slog.Error("build converter", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("open conversion log", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("create output dir", "error", err)
		os.Exit(1)
	}

	var browser *render.Browser
	if *pdf {
		browser, err = startRenderer(ctx, cfg, logger)
		if err != nil {
			slog.Error("start browser", "error", err)
			os.Exit(1)
		}
		defer browser.Close()
	}

	// Content-hash dedup: skip files whose exact bytes already converted.
	hashes := make(map[string]string, len(files))
	if !*force {
		var pending []pipeline.File
		for _, f := range files {
			hash, err := store.HashFile(f.Path)
			if err != nil {
				slog.Warn("hash document", "path", f.Path, "error", err)
				pending = append(pending, f)
				continue
			}
			hashes[f.Path] = hash
			done, err := st.HasSucceeded(ctx, hash)
			if err != nil {
				slog.Warn("dedup lookup", "path", f.Path, "error", err)
			}
			if done {
				slog.Info("skipping already converted document", "path", f.Path)
				continue
			}
			pending = append(pending, f)
		}
		files = pending
	}
	if len(files) == 0 {
		slog.Info("nothing to convert")
		return
	}

	slog.Info("converting documents", "count", len(files))
	outcomes := conv.ConvertAll(ctx, files)

	var failed int
	for i, o := range outcomes {
		name := files[i].Name
		recordOutcome(ctx, st, files[i], hashes[o.Path], o)

		if o.Err != nil {
			failed++
			continue
		}
		data, err := json.MarshalIndent(o.Lesson, "", "  ")
		if err != nil {
			slog.Error("encode lesson", "path", o.Path, "error", err)
			failed++
			continue
		}
		jsonPath := filepath.Join(*outDir, name+".json")
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			slog.Error("write lesson", "path", jsonPath, "error", err)
			failed++
			continue
		}
		slog.Info("lesson written", "path", jsonPath, "type", o.Lesson.Type, "elapsed", o.Elapsed.Round(time.Millisecond))

		if browser != nil {
			pdfBytes, err := browser.Render(ctx, o.Lesson)
			if err != nil {
				slog.Error("render pdf", "path", o.Path, "error", err)
				failed++
				continue
			}
			pdfPath := filepath.Join(*outDir, name+".pdf")
			if err := os.WriteFile(pdfPath, pdfBytes, 0o644); err != nil {
				slog.Error("write pdf", "path", pdfPath, "error", err)
				failed++
				continue
			}
			slog.Info("pdf written", "path", pdfPath)
		}
	}

	slog.Info("conversion finished", "total", len(outcomes), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// recordOutcome logs one conversion attempt in the store.
func recordOutcome(ctx context.Context, st *store.Store, f pipeline.File, hash string, o pipeline.Outcome) {
	if hash == "" {
		h, err := store.HashFile(f.Path)
		if err != nil {
			slog.Warn("hash document", "path", f.Path, "error", err)
			return
		}
		hash = h
	}
	c := &store.Conversion{
		ID:          uuid.NewString(),
		SourcePath:  f.Path,
		SourceName:  f.Name,
		ContentHash: hash,
		DurationMs:  o.Elapsed.Milliseconds(),
		ConvertedAt: time.Now(),
	}
	if o.Err != nil {
		c.Status = store.StatusFailed
		c.ErrorMessage = o.Err.Error()
	} else {
		c.Status = store.StatusOK
		c.LessonType = string(o.Lesson.Type)
		if data, err := json.Marshal(o.Lesson); err == nil {
			c.LessonJSON = string(data)
		}
	}
	if err := st.Insert(ctx, c); err != nil {
		slog.Warn("record conversion", "path", f.Path, "error", err)
	}
}

// runServe starts the HTTP upload service.
func runServe(ctx context.Context, cfg *fileConfig, logger *slog.Logger) {
	conv, err := buildConverter(cfg, logger)
	if err != nil {
		slog.Error("build converter", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("open conversion log", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// The renderer is optional: without a print page, the service still
	// produces lesson JSON.
	var renderer render.Renderer
	printURL := env("PRINT_URL", cfg.Render.PrintURL)
	if printURL != "" {
		browser, err := startRenderer(ctx, cfg, logger)
		if err != nil {
			slog.Error("start browser", "error", err)
			os.Exit(1)
		}
		defer browser.Close()
		renderer = browser
	}

	svc := server.New(conv, renderer, st, server.Config{Logger: logger})

	port := env("PORT", cfg.Port)
	if port == "" {
		port = "8086"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // conversions run inline
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

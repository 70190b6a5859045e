// Package cleaner invokes the external document-cleaning tool that turns a
// .docx file into normalized Markdown with image placeholders. Cleaning is
// best effort: callers fall back to raw text extraction when it is
// unavailable, so every failure here is reported, never fatal.
package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrUnavailable reports that no cleaner invocation strategy produced output.
var ErrUnavailable = errors.New("document cleaner unavailable")

const binaryName = "docling-cleaner"

// Config configures the cleaner adapter.
type Config struct {
	// BinaryPath points at the cleaner binary directly. When set it is the
	// only strategy tried.
	BinaryPath string `json:"binary_path" yaml:"binary_path"`

	// BundleDir holds platform-tagged cleaner binaries, laid out as
	// <BundleDir>/<os>-<arch>/docling-cleaner.
	BundleDir string `json:"bundle_dir" yaml:"bundle_dir"`

	// ScriptDir holds the cleaner Python sources for the interpreter
	// fallback (expects cleaner.py inside).
	ScriptDir string `json:"script_dir" yaml:"script_dir"`

	// Timeout bounds one cleaner invocation (default: 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Cleaner runs the external cleaning tool.
type Cleaner struct {
	cfg Config
}

// New creates a Cleaner.
func New(cfg Config) *Cleaner {
	cfg.defaults()
	return &Cleaner{cfg: cfg}
}

// Clean converts the document at path to Markdown. Strategies are tried in
// order: explicit binary, bundled platform binary, binary on PATH, then the
// interpreter fallback. The first strategy that runs decides the outcome;
// only a strategy that cannot start falls through to the next.
func (c *Cleaner) Clean(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.cfg.BinaryPath != "" {
		return c.runBinary(ctx, c.cfg.BinaryPath, path)
	}

	if bin := c.bundledBinary(); bin != "" {
		out, err := c.runBinary(ctx, bin, path)
		if err == nil {
			return out, nil
		}
		c.cfg.Logger.Warn("bundled cleaner failed, trying fallback", "binary", bin, "error", err)
	}

	if bin, err := exec.LookPath(binaryName); err == nil {
		out, err := c.runBinary(ctx, bin, path)
		if err == nil {
			return out, nil
		}
		c.cfg.Logger.Warn("cleaner on PATH failed, trying fallback", "binary", bin, "error", err)
	}

	return c.runScript(ctx, path)
}

// bundledBinary returns the platform-tagged binary under BundleDir, or ""
// when absent.
func (c *Cleaner) bundledBinary() string {
	if c.cfg.BundleDir == "" {
		return ""
	}
	name := binaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	bin := filepath.Join(c.cfg.BundleDir, runtime.GOOS+"-"+runtime.GOARCH, name)
	if _, err := os.Stat(bin); err != nil {
		return ""
	}
	return bin
}

func (c *Cleaner) runBinary(ctx context.Context, bin, path string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, path)
	return c.run(cmd)
}

// runScript invokes the cleaner sources through uv, the way the tool is run
// during development when no compiled binary ships.
func (c *Cleaner) runScript(ctx context.Context, path string) (string, error) {
	if c.cfg.ScriptDir == "" {
		return "", ErrUnavailable
	}
	if _, err := os.Stat(filepath.Join(c.cfg.ScriptDir, "cleaner.py")); err != nil {
		return "", fmt.Errorf("%w: no cleaner.py in %s", ErrUnavailable, c.cfg.ScriptDir)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	cmd := exec.CommandContext(ctx, "uv", "run", "python", "cleaner.py", abs)
	cmd.Dir = c.cfg.ScriptDir
	return c.run(cmd)
}

func (c *Cleaner) run(cmd *exec.Cmd) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("cleaner %s: %w: %s", cmd.Path, err, msg)
		}
		return "", fmt.Errorf("cleaner %s: %w", cmd.Path, err)
	}

	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("cleaner %s: empty output", cmd.Path)
	}
	c.cfg.Logger.Debug("cleaner succeeded",
		"binary", cmd.Path, "bytes", len(out), "elapsed", time.Since(start))
	return out, nil
}

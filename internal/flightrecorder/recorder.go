// Package flightrecorder keeps a rolling execution trace in memory and writes it to disk when a request times out
// or a regeneration runs slow.
package flightrecorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync"
	"time"

	"github.com/myrjola/ruckplan/internal/errors"
)

const (
	defaultMinAge   = 5 * time.Minute
	defaultMaxBytes = 64 << 20
	defaultCooldown = 30 * time.Minute
)

// Config configures a [Recorder]. Zero durations and sizes use the defaults.
type Config struct {
	Dir      string
	MinAge   time.Duration
	MaxBytes uint64
	// Cooldown is the minimum time between two captures of the same kind.
	Cooldown time.Duration
}

// Recorder captures the recent execution trace into Dir.
type Recorder struct {
	logger   *slog.Logger
	fr       *trace.FlightRecorder
	dir      string
	cooldown time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastCapture map[string]time.Time
}

// New creates the trace directory if needed and returns a stopped recorder.
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.Dir == "" {
		return nil, errors.New("trace directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil { //nolint:mnd // owner only
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	minAge := cfg.MinAge
	if minAge <= 0 {
		minAge = defaultMinAge
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = defaultMaxBytes
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Recorder{
		logger:      logger,
		fr:          trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: minAge, MaxBytes: maxBytes}),
		dir:         cfg.Dir,
		cooldown:    cooldown,
		now:         time.Now,
		mu:          sync.Mutex{},
		lastCapture: make(map[string]time.Time),
	}, nil
}

// Start begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.fr.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder started",
		slog.String("dir", r.dir), slog.Duration("cooldown", r.cooldown))
	return nil
}

// Stop ends recording.
func (r *Recorder) Stop(ctx context.Context) {
	r.fr.Stop()
	r.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder stopped")
}

// Capture writes the buffered trace to <kind>-<timestamp>.trace and returns the file path. Nothing is written while
// the recorder is stopped or when a trace of the same kind was captured within the cooldown.
func (r *Recorder) Capture(ctx context.Context, kind string) (string, bool) {
	if !r.fr.Enabled() {
		return "", false
	}
	now := r.now()
	r.mu.Lock()
	if last, ok := r.lastCapture[kind]; ok && now.Sub(last) < r.cooldown {
		r.mu.Unlock()
		r.logger.LogAttrs(ctx, slog.LevelDebug, "skipping trace capture during cooldown",
			slog.String("kind", kind), slog.Time("last_capture", last))
		return "", false
	}
	r.lastCapture[kind] = now
	r.mu.Unlock()

	fPath := filepath.Join(r.dir, fmt.Sprintf("%s-%s.trace", kind, now.UTC().Format("20060102-150405")))
	n, err := r.writeFile(fPath)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "capture trace", errors.SlogError(err))
		return "", false
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured trace",
		slog.String("kind", kind), slog.String("file", fPath), slog.Int64("bytes", n))
	return fPath, true
}

func (r *Recorder) writeFile(fPath string) (_ int64, err error) {
	f, err := os.Create(fPath)
	if err != nil {
		return 0, fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close trace file: %w", closeErr)
		}
	}()
	n, err := r.fr.WriteTo(f)
	if err != nil {
		return n, fmt.Errorf("write trace: %w", err)
	}
	return n, nil
}

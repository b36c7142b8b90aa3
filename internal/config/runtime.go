package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Limits is the snapshot of tunable policy knobs a turn runs against.
type Limits struct {
	Mode                string
	AssistThreshold     float64
	AutonomousThreshold float64
	MaxAutoRecipients   int
}

// Runtime holds the live configuration and supports hot-reload of the
// policy limits while a process is running. Structural settings
// (database paths, oracle provider) are fixed at startup.
type Runtime struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewRuntime wraps a loaded config.
func NewRuntime(cfg *Config) *Runtime {
	return &Runtime{cfg: cfg}
}

// Limits returns the current policy limits snapshot.
func (r *Runtime) Limits() Limits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Limits{
		Mode:                r.cfg.Autonomy.Mode,
		AssistThreshold:     r.cfg.Autonomy.AssistThreshold,
		AutonomousThreshold: r.cfg.Autonomy.AutonomousThreshold,
		MaxAutoRecipients:   r.cfg.Autonomy.MaxAutoRecipients,
	}
}

// Config returns the wrapped config. Callers must treat it as read-only.
func (r *Runtime) Config() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// replaceLimits swaps in the tunable knobs from a freshly loaded config.
func (r *Runtime) replaceLimits(fresh *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Autonomy = fresh.Autonomy
	r.cfg.Oracle.ConfidenceCap = fresh.Oracle.ConfidenceCap
	r.cfg.Audit.RecordFailures = fresh.Audit.RecordFailures
}

// Watch reloads the policy limits whenever the config file changes.
// It returns once the watcher is installed and stops when ctx is done.
// Reload failures keep the previous limits.
func (r *Runtime) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				fresh, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed, keeping previous limits",
						zap.String("path", path), zap.Error(err))
					continue
				}
				if err := fresh.Validate(); err != nil {
					logger.Warn("reloaded config invalid, keeping previous limits",
						zap.String("path", path), zap.Error(err))
					continue
				}
				r.replaceLimits(fresh)
				logger.Info("policy limits reloaded",
					zap.String("mode", fresh.Autonomy.Mode),
					zap.Float64("assist_threshold", fresh.Autonomy.AssistThreshold),
					zap.Int("max_auto_recipients", fresh.Autonomy.MaxAutoRecipients))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

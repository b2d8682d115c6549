// Package policyfile loads the YAML policy document used by the Policy
// Engine (C2) from disk, computes its policy_hash, and watches the file
// for changes so a running process can hot-reload rules without a
// restart.
package policyfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegiscore/aegis/internal/domain/policy"
)

// Loader reads a policy document from path, recompiles its rules, and
// recomputes policy_hash on every Load call (Watch calls Load on change).
type Loader struct {
	path      string
	evaluator policy.ExpressionEvaluator
	logger    *slog.Logger

	mu     sync.RWMutex
	engine *policy.Engine
}

// NewLoader builds a Loader bound to path. evaluator may be nil when no
// rule in the document uses the CEL expression escape hatch.
func NewLoader(path string, evaluator policy.ExpressionEvaluator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, evaluator: evaluator, logger: logger}
}

// Load reads and compiles the policy document, replacing the Loader's
// current engine on success. On failure the previous engine (if any) is
// left in place so a malformed file never takes down an already-running
// process.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("policyfile: read %q: %w", l.path, err)
	}
	var doc policy.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("policyfile: parse %q: %w", l.path, err)
	}
	engine, err := policy.NewEngine(doc, l.evaluator)
	if err != nil {
		return fmt.Errorf("policyfile: compile %q: %w", l.path, err)
	}

	l.mu.Lock()
	l.engine = engine
	l.mu.Unlock()
	l.logger.Info("policy loaded", "path", l.path, "policy_hash", engine.PolicyHash(), "rules", len(doc.Rules))
	return nil
}

// Engine returns the currently loaded Engine. Load must have succeeded
// at least once before calling Engine.
func (l *Loader) Engine() *policy.Engine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine
}

// Watch polls path for mtime changes every interval and calls Load on
// change, invoking onReload with the new policy_hash whenever the
// reload succeeds (e.g. so the intent router can flush its cache). It
// blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, interval time.Duration, onReload func(policyHash string)) {
	var lastMod time.Time
	if info, err := os.Stat(l.path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(l.path)
			if err != nil {
				l.logger.Warn("policy file stat failed", "path", l.path, "error", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			if err := l.Load(); err != nil {
				l.logger.Error("policy reload failed, keeping previous policy", "path", l.path, "error", err)
				continue
			}
			if onReload != nil {
				onReload(l.Engine().PolicyHash())
			}
		}
	}
}

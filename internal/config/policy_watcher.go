package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PolicyProvider hands out the policy in effect. Callers read it once per
// turn so a reload never changes wording halfway through a turn.
type PolicyProvider interface {
	Current() *Policy
}

// StaticPolicy is a PolicyProvider that never changes
type StaticPolicy struct {
	policy *Policy
}

func NewStaticPolicy(p *Policy) *StaticPolicy {
	if p == nil {
		p = DefaultPolicy()
	}
	return &StaticPolicy{policy: p}
}

func (s *StaticPolicy) Current() *Policy {
	return s.policy
}

// PolicyWatcher reloads a policy file when it changes on disk. A file that
// fails validation is logged and the previous policy stays in effect.
type PolicyWatcher struct {
	path     string
	current  atomic.Pointer[Policy]
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	reloads atomic.Int64
}

// NewPolicyWatcher loads the policy at path. Call Start to begin watching.
func NewPolicyWatcher(path string) (*PolicyWatcher, error) {
	policy, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	w := &PolicyWatcher{
		path:     path,
		debounce: 250 * time.Millisecond,
	}
	w.current.Store(policy)
	return w, nil
}

func (w *PolicyWatcher) Current() *Policy {
	return w.current.Load()
}

// Reloads returns how many successful reloads have happened
func (w *PolicyWatcher) Reloads() int64 {
	return w.reloads.Load()
}

// Reload re-reads the policy file
func (w *PolicyWatcher) Reload() error {
	policy, err := LoadPolicy(w.path)
	if err != nil {
		return err
	}
	previous := w.current.Swap(policy)
	w.reloads.Add(1)
	logger.Base().Info("policy reloaded",
		zap.String("path", w.path),
		zap.String("previous_version", previous.Version),
		zap.String("version", policy.Version))
	return nil
}

// Start watches the directory holding the policy file. Editors often replace
// files by rename, so the directory is watched rather than the file.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel
	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)

	logger.Base().Info("policy watcher started", zap.String("path", w.path))
	return nil
}

// Close stops the watcher
func (w *PolicyWatcher) Close() error {
	w.mu.Lock()
	watcher := w.watcher
	cancel := w.cancel
	w.watcher = nil
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *PolicyWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()

	target := filepath.Clean(w.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.Reload(); err != nil {
					logger.Base().Warn("policy reload failed, keeping previous policy",
						zap.String("path", w.path), zap.Error(err))
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Base().Warn("policy watcher error", zap.Error(err))
		}
	}
}

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

const (
	// reloadDelay lets an editor finish writing before the file is re-read.
	reloadDelay = 250 * time.Millisecond

	watchRetryMin = 250 * time.Millisecond
	watchRetryMax = 5 * time.Second
)

// Manager holds the current config and republishes it when the file changes.
type Manager struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cur *Config

	subMu sync.Mutex
	subs  []chan *Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Load reads the file and makes it the current config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	m.set(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func (m *Manager) set(cfg *Config) {
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
}

// Subscribe returns a channel receiving every accepted reload. When the
// subscriber falls behind, older pending configs are replaced by newer ones.
func (m *Manager) Subscribe(buffer int) <-chan *Config {
	ch := make(chan *Config, max(1, buffer))
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

// Unsubscribe closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(sub <-chan *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, ch := range m.subs {
		if (<-chan *Config)(ch) == sub {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) broadcast(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				// full: discard the oldest pending config and try again
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload re-reads the file. Invalid or unchanged content is not published.
func (m *Manager) reload() {
	cfg, err := ReadFile(m.path)
	if err != nil {
		m.log.Warn("config reload rejected; keeping current config", logx.String("path", m.path), logx.Err(err))
		return
	}
	if reflect.DeepEqual(cfg, m.Get()) {
		m.log.Debug("config file touched without changes", logx.String("path", m.path))
		return
	}
	m.set(cfg)
	m.broadcast(cfg)
	m.log.Info("config reload accepted", logx.String("path", m.path))
}

// Watch follows the config file until ctx is done. A failing watcher is
// recreated with exponential backoff.
func (m *Manager) Watch(ctx context.Context) error {
	retry := watchRetryMin
	for {
		healthy, err := m.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if healthy {
			retry = watchRetryMin
		}
		m.log.Warn("config watcher failed; retrying", logx.Duration("in", retry), logx.Err(err))

		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		retry = min(2*retry, watchRetryMax)
	}
}

// watch runs one fsnotify watcher on the config's directory, so editors that
// replace the file by rename are still seen. healthy reports whether the
// watcher got as far as receiving events.
func (m *Manager) watch(ctx context.Context) (healthy bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return false, fmt.Errorf("watch %s: %w", dir, err)
	}
	m.log.Debug("watching config", logx.String("path", m.path))

	pending := time.NewTimer(reloadDelay)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-pending.C:
			m.reload()
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("watcher events closed")
			}
			if filepath.Base(ev.Name) == name && ev.Op&^fsnotify.Chmod != 0 {
				pending.Reset(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true, errors.New("watcher errors closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				pending.Reset(reloadDelay)
				continue
			}
			return true, err
		}
	}
}

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Runtime is a shared, refreshable view of the config. Adapters resolve
// bridge mappings through it so enable-flag edits take effect without a
// restart.
type Runtime struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewRuntime(cfg *Config) *Runtime {
	return &Runtime{cfg: cfg}
}

// Snapshot returns the current config.
func (r *Runtime) Snapshot() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Replace swaps in a freshly loaded config.
func (r *Runtime) Replace(cfg *Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// FindByDiscordChannel resolves the enabled bridge mapping for a Discord
// channel id.
func (r *Runtime) FindByDiscordChannel(channelID uint64) (Bridge, bool) {
	return r.find(func(b Bridge) bool { return b.Discord.ChannelID == channelID })
}

// FindByQQGroup resolves the enabled bridge mapping for a QQ group.
func (r *Runtime) FindByQQGroup(group int64) (Bridge, bool) {
	return r.find(func(b Bridge) bool { return b.QQGroup == group })
}

// FindByTGGroup resolves the enabled bridge mapping for a Telegram chat.
func (r *Runtime) FindByTGGroup(group int64) (Bridge, bool) {
	return r.find(func(b Bridge) bool { return b.TGGroup == group })
}

func (r *Runtime) find(match func(Bridge) bool) (Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.cfg.Bridges {
		if match(b) && b.Enable {
			return b, true
		}
	}
	return Bridge{}, false
}

// Enabled re-checks a mapping captured at ingress against the current
// config. Used on the egress path to honour enable=false edits.
func (r *Runtime) Enabled(captured Bridge) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.cfg.Bridges {
		if b.SameChannel(captured) {
			return b.Enable
		}
	}
	return false
}

// Watch reloads the config file on change until ctx is cancelled. Reload
// failures are logged and the previous config stays active.
func (r *Runtime) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace config files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			r.Replace(cfg)
			slog.Info("config reloaded", "bridges", len(cfg.Bridges))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

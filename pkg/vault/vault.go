// Package vault stores provider credentials in a JSON file and reloads
// them when the file changes on disk, so key rotation never requires a
// restart.
package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Vault is a file-backed credential store with hot reload.
type Vault struct {
	mu      sync.RWMutex
	path    string
	secrets map[string]string
	logger  zerolog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
	onReload func()
}

// Options configures a Vault.
type Options struct {
	Path     string
	Logger   zerolog.Logger
	OnReload func() // called after each successful hot reload
}

// Open loads the vault file and starts watching it for changes. A missing
// file yields an empty vault; it appears once something writes it.
func Open(opts Options) (*Vault, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("vault path is required")
	}

	v := &Vault{
		path:     opts.Path,
		secrets:  map[string]string{},
		logger:   opts.Logger,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		onReload: opts.OnReload,
	}

	if err := v.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	v.watcher = watcher

	// Watch the directory, not the file: editors and atomic writers
	// replace the inode and a file watch would go stale.
	dir := filepath.Dir(opts.Path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch vault directory: %w", err)
	}

	go v.run()

	return v, nil
}

// Get returns the secret stored under name.
func (v *Vault) Get(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	secret, ok := v.secrets[name]
	return secret, ok
}

// Set stores a secret and persists the vault file.
func (v *Vault) Set(name, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.secrets[name] = secret
	return v.persistLocked()
}

// Delete removes a secret and persists the vault file.
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.secrets, name)
	return v.persistLocked()
}

// Names returns the stored secret names. Values are never listed.
func (v *Vault) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.secrets))
	for name := range v.secrets {
		out = append(out, name)
	}
	return out
}

// Close stops the file watcher.
func (v *Vault) Close() error {
	close(v.stopCh)
	if v.watcher != nil {
		return v.watcher.Close()
	}
	return nil
}

func (v *Vault) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read vault file: %w", err)
	}

	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("failed to parse vault file: %w", err)
	}

	v.mu.Lock()
	v.secrets = secrets
	v.mu.Unlock()
	return nil
}

func (v *Vault) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	data, err := json.MarshalIndent(v.secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vault: %w", err)
	}

	// Write through a temp file then rename so readers never observe a
	// partial vault.
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write vault file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("failed to replace vault file: %w", err)
	}
	return nil
}

// run processes file system events
func (v *Vault) run() {
	for {
		select {
		case event, ok := <-v.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(v.path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				v.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Vault file change detected")

				v.scheduleReload()
			}

		case err, ok := <-v.watcher.Errors:
			if !ok {
				return
			}
			v.logger.Error().Err(err).Msg("Vault watcher error")

		case <-v.stopCh:
			return
		}
	}
}

// scheduleReload debounces the reload so editors that write in bursts
// trigger a single reload.
func (v *Vault) scheduleReload() {
	if v.timer != nil {
		v.timer.Stop()
	}

	v.timer = time.AfterFunc(v.debounce, func() {
		if err := v.load(); err != nil {
			v.logger.Error().Err(err).Msg("Vault reload failed, keeping previous secrets")
			return
		}
		v.logger.Info().Msg("Vault reloaded")
		if v.onReload != nil {
			v.onReload()
		}
	})
}

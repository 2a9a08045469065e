package process

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"vawter.tech/stopper"
)

// AllowList restricts which programs START may launch.
// The file holds one program name per line; blank lines and lines starting with # are ignored.
// Entries are matched against the base name of the first word of the command line.
type AllowList struct {
	path string
	log  *zap.SugaredLogger

	mu       sync.RWMutex
	programs map[string]struct{}
}

// LoadAllowList reads the allow-list at path.
func LoadAllowList(path string, log *zap.SugaredLogger) (*AllowList, error) {
	a := &AllowList{path: path, log: log}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-reads the file. On error the previous contents stay in effect.
func (a *AllowList) Reload() error {
	b, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("reading allow-list %q: %w", a.path, err)
	}
	programs := parseAllowList(b)

	a.mu.Lock()
	a.programs = programs
	a.mu.Unlock()

	a.log.Debugw("loaded allow-list", "Path", a.path, "Entries", len(programs))
	return nil
}

func parseAllowList(b []byte) map[string]struct{} {
	programs := map[string]struct{}{}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		programs[line] = struct{}{}
	}
	return programs
}

// Check returns ErrNotAllowed unless the command line's program is listed.
func (a *AllowList) Check(commandLine string) error {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return ErrNotAllowed
	}
	program := filepath.Base(fields[0])

	a.mu.RLock()
	_, ok := a.programs[program]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAllowed, program)
	}
	return nil
}

// Watch reloads the allow-list whenever its file changes, until sctx is stopping.
// The parent directory is watched so that atomic replacements (write to temp file, rename) are seen.
func (a *AllowList) Watch(sctx *stopper.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating allow-list watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		return fmt.Errorf("watching allow-list dir: %w", err)
	}

	name := filepath.Base(a.path)
	for {
		select {
		case <-sctx.Stopping():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := a.Reload(); err != nil {
				a.log.Debugf("reloading allow-list: %s", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Debugf("allow-list watcher error: %s", err)
		}
	}
}

package api

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 100 * time.Millisecond

// watchedExt lists the file types that trigger a reload.
var watchedExt = map[string]bool{".hcl": true, ".star": true}

// watchFiles reloads the engine when definitions or formula modules change.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range []string{s.cfg.Engine.CatalogDir, s.cfg.Engine.FormulasDir} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			s.logger.Warn("not watching missing directory", "dir", dir)
			continue
		}
		if err := watcher.Add(dir); err != nil {
			// Don't fail - keep serving without reloads
			s.logger.Error("failed to watch directory", "dir", dir, "error", err)
			continue
		}
		s.logger.Debug("watching directory", "dir", dir)
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !watchedExt[filepath.Ext(event.Name)] {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(reloadDelay, func() {
				s.logger.Debug("file changed, reloading catalog", "file", name)
				if err := s.Reload(); err != nil {
					s.logger.Error("keeping previous catalog", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

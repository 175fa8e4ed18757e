package store

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay 合并编辑器保存时连续产生的多个事件。
const reloadDelay = 200 * time.Millisecond

// Reload re-reads dir and swaps the result in. On failure the current
// library, including its active flags, is left untouched.
func (s *Store) Reload(dir string) error {
	next, err := LoadFS(os.DirFS(dir))
	if err != nil {
		return err
	}
	s.replace(next)
	return nil
}

// Watch reloads the store whenever a file under dir changes, until ctx is
// done. Reload errors are logged and the previous library stays in place.
func (s *Store) Watch(ctx context.Context, dir string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// 新建的子目录也需要监听
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Printf("store: watch %s: %v", event.Name, err)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Printf("store: watcher: %v", err)
		case <-timer.C:
			if err := s.Reload(dir); err != nil {
				logger.Printf("store: reload %s failed, keeping previous templates: %v", dir, err)
				continue
			}
			logger.Printf("store: reloaded %s", dir)
		}
	}
}

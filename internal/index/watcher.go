package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gpabois/emerald/internal/vault"
)

// ChangeKind names what happened to an indexed entry.
type ChangeKind string

const (
	Created  ChangeKind = "created"
	Updated  ChangeKind = "updated"
	Deleted  ChangeKind = "deleted"
	Relinked ChangeKind = "relinked" // a link file was written
)

// Change is reported after each watcher-driven index mutation.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path"`
}

// EventCallback receives index changes.
type EventCallback func(Change)

// settleDelay batches link and rename bursts into one reconciliation.
const settleDelay = 200 * time.Millisecond

type watcher struct {
	db     *DB
	vault  *vault.Vault
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	cb     EventCallback

	settle   *time.Timer
	settleCh <-chan time.Time
}

// Watch keeps the index in sync with the vault until ctx is cancelled.
//
// Only the host tree under the root is watched. Shards reached through link
// files are refreshed by a full reconciliation whenever a link file changes
// or an entry is renamed or removed.
func Watch(ctx context.Context, db *DB, v *vault.Vault, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watcher{db: db, vault: v, fsw: fsw, logger: logger, cb: cb}
	if err := w.watchTree(v.Root()); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", v.Root()))

	for {
		select {
		case <-ctx.Done():
			if w.settle != nil {
				w.settle.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-w.settleCh:
			if err := reconcile(db, v, logger, w.notify); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *watcher) notify(kind ChangeKind, p string) {
	if w.cb != nil {
		w.cb(Change{Kind: kind, Path: p})
	}
}

func (w *watcher) scheduleReconcile() {
	if w.settle == nil {
		w.settle = time.NewTimer(settleDelay)
		w.settleCh = w.settle.C
		return
	}
	w.settle.Reset(settleDelay)
}

func (w *watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("watcher: add dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			w.indexTree(ev.Name)
			return
		}
	}

	p, ok := w.vault.Rel(ev.Name)
	if !ok {
		return
	}
	if filepath.Ext(ev.Name) != vault.ShardExt {
		w.handleFile(ev, p)
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		kind := Updated
		if ev.Op&fsnotify.Create != 0 {
			kind = Created
		}
		if w.index(p) {
			w.notify(kind, p.String())
		}

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename reports the old path only; the new one arrives as a
		// Create when it stays inside the vault.
		if err := w.db.DeleteShard(p.String()); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", p.String()), slog.String("error", err.Error()))
		} else {
			w.logger.Debug("watcher: deleted", slog.String("path", p.String()))
			w.notify(Deleted, p.String())
		}
		if ev.Op&fsnotify.Rename != 0 {
			w.scheduleReconcile()
		}
	}
}

// handleFile reacts to non-shard entries: a written link file may expose a
// new subtree, a removed entry may have been one.
func (w *watcher) handleFile(ev fsnotify.Event, p vault.Path) {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.scheduleReconcile()
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	m, err := w.vault.Stat(p)
	if err != nil || !m.IsSymlink() {
		return
	}
	w.logger.Debug("watcher: link changed", slog.String("path", p.String()))
	w.notify(Relinked, p.String())
	w.scheduleReconcile()
}

func (w *watcher) index(p vault.Path) bool {
	data, err := w.vault.ReadFile(p)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", p.String()), slog.String("error", err.Error()))
		return false
	}
	if err := IndexShard(w.db, p, data, time.Now()); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", p.String()), slog.String("error", err.Error()))
		return false
	}
	w.logger.Debug("watcher: indexed", slog.String("path", p.String()))
	return true
}

// indexTree indexes the shards of a directory that appeared after its
// files were written.
func (w *watcher) indexTree(dir string) {
	_ = filepath.WalkDir(dir, func(host string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(host) != vault.ShardExt {
			return nil
		}
		if p, ok := w.vault.Rel(host); ok && w.index(p) {
			w.notify(Created, p.String())
		}
		return nil
	})
}

func (w *watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(host string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(host)
		}
		return nil
	})
}

package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gpabois/emerald/internal/vault"
)

// watcherTestEnv sets up a vault dir and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *vault.Vault, *DB) {
	t.Helper()
	vaultDir := t.TempDir()
	v, err := vault.Open(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return v.Root(), v, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewShardIndexed(t *testing.T) {
	vaultDir, v, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, v, quietLogger(), func(c Change) {
		mu.Lock()
		events = append(events, string(c.Kind)+":"+c.Path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("/new.md")
		return cs != ""
	}, "new shard not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:/new.md" {
				return true
			}
		}
		return false
	}, "expected created:/new.md callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, v, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, v, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("/subdir/deep.md")
		return cs != ""
	}, "shard in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	vaultDir, v, db := watcherTestEnv(t)
	logger := quietLogger()

	_ = os.WriteFile(filepath.Join(vaultDir, "del.md"), []byte("# Delete Me"), 0o644)
	if err := Sync(db, v, logger); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("/del.md"); cs == "" {
		t.Fatal("precondition: shard should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, v, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("/del.md")
		return cs == ""
	}, "deleted shard still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	vaultDir, v, db := watcherTestEnv(t)
	logger := quietLogger()

	_ = os.WriteFile(filepath.Join(vaultDir, "old.md"), []byte("# Rename"), 0o644)
	if err := Sync(db, v, logger); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, v, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("/old.md")
		newCS, _ := db.GetChecksum("/renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}

func TestWatcher_LinkFileTriggersReconcile(t *testing.T) {
	vaultDir, v, db := watcherTestEnv(t)
	ext := t.TempDir()
	_ = os.WriteFile(filepath.Join(ext, "far.md"), []byte("# Far"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Change, 16)
	go Watch(ctx, db, v, quietLogger(), func(c Change) { changes <- c })
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(vaultDir, "ext"), []byte(vault.LinkMarker+ext), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("/ext/far.md")
		return cs != ""
	}, "shard behind new link not indexed")

	seen := map[Change]bool{}
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		for len(changes) > 0 {
			seen[<-changes] = true
		}
		return seen[Change{Relinked, "/ext"}] && seen[Change{Created, "/ext/far.md"}]
	}, "expected relinked:/ext and created:/ext/far.md changes")
}

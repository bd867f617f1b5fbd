package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/gpabois/emerald/internal/vault"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"shards", "links", "tasks"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := ShardRow{
		Path:      "/hello.md",
		Title:     "Hello World",
		Checksum:  "abc123",
		Tags:      []string{"go", "test"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertShard(row, "This is a hello world shard.", []string{"/other.md"}, nil); err != nil {
		t.Fatalf("UpsertShard: %v", err)
	}
	cs, err := db.GetChecksum("/hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetShard("/hello.md")
	if err != nil {
		t.Fatalf("GetShard: %v", err)
	}
	if got.Title != "Hello World" || len(got.Tags) != 2 {
		t.Errorf("shard = %+v", got)
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertShard(ShardRow{Path: "/a.md", Checksum: "1", UpdatedAt: time.Now()}, "body", []string{"/b.md"}, nil)
	_ = db.UpsertShard(ShardRow{Path: "/c.md", Checksum: "2", UpdatedAt: time.Now()}, "body", []string{"/b.md"}, nil)

	bl, err := db.Backlinks("/b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if diff := cmp.Diff([]string{"/a.md", "/c.md"}, bl); diff != "" {
		t.Errorf("backlinks mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteShard(t *testing.T) {
	db := testDB(t)
	tasks := []TaskRow{{Text: "gone", Line: 1}}
	_ = db.UpsertShard(ShardRow{Path: "/del.md", Checksum: "x", UpdatedAt: time.Now()}, "body", []string{"/target.md"}, tasks)

	if err := db.DeleteShard("/del.md"); err != nil {
		t.Fatalf("DeleteShard: %v", err)
	}
	if cs, _ := db.GetChecksum("/del.md"); cs != "" {
		t.Errorf("deleted shard still has checksum %q", cs)
	}
	if bl, _ := db.Backlinks("/target.md"); len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
	if ts, _ := db.Tasks(TaskFilter{}); len(ts) != 0 {
		t.Errorf("expected 0 tasks after delete, got %d", len(ts))
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertShard(ShardRow{Path: "/up.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body", []string{"/x.md"}, nil)
	_ = db.UpsertShard(ShardRow{Path: "/up.md", Title: "New", Checksum: "2", Tags: []string{"new"}, UpdatedAt: now}, "new body", []string{"/y.md"}, nil)

	if cs, _ := db.GetChecksum("/up.md"); cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if bl, _ := db.Backlinks("/x.md"); len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	if bl, _ := db.Backlinks("/y.md"); len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("/nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListShards_TagFilter(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertShard(ShardRow{Path: "/a.md", Checksum: "1", Tags: []string{"go"}, UpdatedAt: now}, "", nil, nil)
	_ = db.UpsertShard(ShardRow{Path: "/b.md", Checksum: "2", Tags: []string{"rust"}, UpdatedAt: now}, "", nil, nil)
	_ = db.UpsertShard(ShardRow{Path: "/c.md", Checksum: "3", Tags: []string{"go", "db"}, UpdatedAt: now}, "", nil, nil)

	rows, total, err := db.ListShards(1, 0, "go")
	if err != nil {
		t.Fatalf("ListShards: %v", err)
	}
	if total != 2 || len(rows) != 1 || rows[0].Path != "/a.md" {
		t.Errorf("rows = %+v, total = %d", rows, total)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertShard(ShardRow{Path: "/s.md", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil, nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "/s.md" {
		t.Errorf("search results = %+v, want 1 hit for /s.md", results)
	}
}

func TestSync_IndexesVault(t *testing.T) {
	root := t.TempDir()
	ext := t.TempDir()
	write := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(root, "plan.md"), "# Plan\n\n- [ ] draft #work\n  - [x] outline\n- [x] review [[ideas]]\n")
	write(filepath.Join(root, "notes", "ideas.md"), "---\ntitle: Ideas\n---\nSee [[plan]].\n")
	write(filepath.Join(ext, "shared.md"), "# Shared\n")
	write(filepath.Join(ext, "deep", "inner.md"), "# Inner\n")
	write(filepath.Join(root, "ext"), vault.LinkMarker+ext)
	write(filepath.Join(root, "image.png"), "png")

	v, err := vault.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	if err := Sync(db, v, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	sums, _ := db.AllChecksums()
	var paths []string
	for p := range sums {
		paths = append(paths, p)
	}
	want := []string{"/ext/deep/inner.md", "/ext/shared.md", "/notes/ideas.md", "/plan.md"}
	if diff := cmp.Diff(want, paths, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("indexed paths mismatch (-want +got):\n%s", diff)
	}

	s, err := db.GetShard("/notes/ideas.md")
	if err != nil || s.Title != "Ideas" {
		t.Errorf("GetShard = %+v, %v", s, err)
	}
	if bl, _ := db.Backlinks("plan"); len(bl) != 1 || bl[0] != "/notes/ideas.md" {
		t.Errorf("backlinks = %v", bl)
	}

	tasks, err := db.Tasks(TaskFilter{Prefix: "/plan"})
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	wantTasks := []TaskRow{
		{Source: "/plan.md", Position: 0, Line: 3, Depth: 0, Text: "draft #work"},
		{Source: "/plan.md", Position: 1, Line: 4, Depth: 1, Text: "outline", Checked: true},
		{Source: "/plan.md", Position: 2, Line: 5, Depth: 0, Text: "review [[ideas]]", Checked: true},
	}
	if diff := cmp.Diff(wantTasks, tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}

	open, _ := db.Tasks(TaskFilter{OpenOnly: true})
	if len(open) != 1 {
		t.Errorf("open tasks = %d, want 1", len(open))
	}

	// Removing a shard and syncing again drops it.
	if err := os.Remove(filepath.Join(root, "plan.md")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, v, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum("/plan.md"); cs != "" {
		t.Error("removed shard still indexed")
	}
}

func TestSearch_MatchesTaskText(t *testing.T) {
	db := testDB(t)
	tasks := []TaskRow{{Source: "/todo.md", Line: 1, Text: "renew passport"}}
	if err := db.UpsertShard(ShardRow{Path: "/todo.md", Title: "Errands", Checksum: "1", UpdatedAt: time.Now()}, "", nil, tasks); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("passport", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "/todo.md" {
		t.Errorf("results = %+v, want /todo.md", results)
	}
}

func TestMigrations(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v, err := db.SchemaVersion(); err != nil || v != len(migrations) {
		t.Fatalf("SchemaVersion() = %d, %v, want %d", v, err, len(migrations))
	}
	_ = db.UpsertShard(ShardRow{Path: "/keep.md", Checksum: "k", UpdatedAt: time.Now()}, "", nil, nil)
	db.Close()

	// Reopening applies nothing and keeps the data.
	db, err = Open(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if cs, _ := db.GetChecksum("/keep.md"); cs != "k" {
		t.Errorf("checksum after reopen = %q, want %q", cs, "k")
	}

	// A file written by a newer build is refused.
	if _, err := db.conn.Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	db.Close()
	if _, err := Open(dsn); err == nil {
		t.Error("Open should refuse a newer schema")
	}
}

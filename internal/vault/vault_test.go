package vault

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gpabois/emerald/internal/apperr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func openVault(t *testing.T, root string, opts ...Option) *Vault {
	t.Helper()
	v, err := Open(root, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func TestOpen_RejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	writeFile(t, file, "x")

	for _, root := range []string{file, filepath.Join(dir, "missing")} {
		if _, err := Open(root); !errors.Is(err, apperr.ErrNotDirectory) {
			t.Errorf("Open(%s) err = %v, want ErrNotDirectory", root, err)
		}
	}
}

func TestPath(t *testing.T) {
	if diff := cmp.Diff([]string{"", "a", "b"}, Path("/a/b").Parts()); diff != "" {
		t.Errorf("Parts mismatch (-want +got):\n%s", diff)
	}
	tests := []struct {
		base Path
		name string
		want Path
	}{
		{"", "x", "/x"},
		{"/", "x", "/x"},
		{"/a/", "b", "/a/b"},
		{"/a", "/b", "/a/b"},
	}
	for _, tt := range tests {
		if got := tt.base.Append(tt.name); got != tt.want {
			t.Errorf("%q.Append(%q) = %q, want %q", tt.base, tt.name, got, tt.want)
		}
	}
	if got := Path("/a/b.md").Base(); got != "b.md" {
		t.Errorf("Base = %q, want %q", got, "b.md")
	}
	for in, want := range map[Path]Path{"": "", "/": "", "a//b/": "/a/b", "/a": "/a"} {
		if got := in.Clean(); got != want {
			t.Errorf("%q.Clean() = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalize_JoinsSegments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes", "index.md"), "# hi")
	v := openVault(t, root)

	got, err := v.Canonicalize("/notes/index.md")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if want := filepath.Join(root, "notes", "index.md"); got != want {
		t.Errorf("canon = %q, want %q", got, want)
	}

	if got, _ := v.Canonicalize(""); got != root {
		t.Errorf("root canon = %q, want %q", got, root)
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "a.md"), "")
	writeFile(t, filepath.Join(root, "docs"), LinkMarker+target)
	v := openVault(t, root)

	tests := []struct {
		path Path
		want error
	}{
		{"/missing.md", apperr.ErrNotFound},
		{"/missing/child.md", apperr.ErrNotFound},
		// Only the final segment is redirected.
		{"/docs/a.md", apperr.ErrNotFound},
		{"/../etc", apperr.ErrInvalidPath},
	}
	for _, tt := range tests {
		if _, err := v.Canonicalize(tt.path); !errors.Is(err, tt.want) {
			t.Errorf("Canonicalize(%s) err = %v, want %v", tt.path, err, tt.want)
		}
	}
}

func TestCanonicalize_FinalLink(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(root, "docs"), LinkMarker+target+"\n")
	writeFile(t, filepath.Join(root, "rel"), LinkMarker+"inner")
	v := openVault(t, root)

	if got, err := v.Canonicalize("/docs"); err != nil || got != target {
		t.Errorf("canon = %q, %v, want %q", got, err, target)
	}
	if got, _ := v.Canonicalize("/rel"); got != filepath.Join(root, "inner") {
		t.Errorf("relative canon = %q, want %q", got, filepath.Join(root, "inner"))
	}
}

func TestCanonicalize_LinkChains(t *testing.T) {
	root := t.TempDir()
	final := t.TempDir()
	writeFile(t, filepath.Join(root, "first"), LinkMarker+filepath.Join(root, "second"))
	writeFile(t, filepath.Join(root, "second"), LinkMarker+final)

	single := openVault(t, root)
	if got, _ := single.Canonicalize("/first"); got != filepath.Join(root, "second") {
		t.Errorf("single-level canon = %q, want the intermediate link", got)
	}

	chained := openVault(t, root, WithFollowLinks(4))
	if got, _ := chained.Canonicalize("/first"); got != final {
		t.Errorf("chained canon = %q, want %q", got, final)
	}

	writeFile(t, filepath.Join(root, "a"), LinkMarker+filepath.Join(root, "b"))
	writeFile(t, filepath.Join(root, "b"), LinkMarker+filepath.Join(root, "a"))
	if _, err := chained.Canonicalize("/a"); !errors.Is(err, apperr.ErrLinkCycle) {
		t.Errorf("cycle err = %v, want ErrLinkCycle", err)
	}
}

func TestReadDir_Classification(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "note.md"), LinkMarker+"ignored, shards win")
	writeFile(t, filepath.Join(root, "img.png"), "\x89PNG")
	writeFile(t, filepath.Join(root, "sub", "x.txt"), "x")
	writeFile(t, filepath.Join(root, "tiny"), "@")
	writeFile(t, filepath.Join(root, "zlink"), LinkMarker+root)
	v := openVault(t, root)

	entries, err := v.ReadDir("")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	got := map[Path]FileType{}
	for _, e := range entries {
		got[e.Path] = e.Metadata.Type
	}
	want := map[Path]FileType{
		"/img.png": RegularFile,
		"/note.md": Shard,
		"/sub":     Directory,
		"/tiny":    RegularFile,
		"/zlink":   Symlink,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("classification mismatch (-want +got):\n%s", diff)
	}

	for _, e := range entries {
		if e.Path == "/note.md" && !(e.Metadata.IsFile() && e.Metadata.IsShard()) {
			t.Errorf("shard metadata = %+v, want IsFile and IsShard", e.Metadata)
		}
		if e.Path == "/zlink" && e.Metadata.IsFile() {
			t.Error("link reported as a file")
		}
	}
}

func TestReadDir_LinkedDirectory(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "a.md"), "")
	writeFile(t, filepath.Join(target, "b.txt"), "")
	writeFile(t, filepath.Join(root, "ext"), LinkMarker+target)
	v := openVault(t, root)

	entries, err := v.ReadDir("/ext")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path.String())
	}
	if diff := cmp.Diff([]string{"/ext/a.md", "/ext/b.txt"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestReadDir_LinkToLink(t *testing.T) {
	root := t.TempDir()
	final := t.TempDir()
	writeFile(t, filepath.Join(final, "a.md"), "")
	writeFile(t, filepath.Join(root, "first"), LinkMarker+filepath.Join(root, "second"))
	writeFile(t, filepath.Join(root, "second"), LinkMarker+final)
	v := openVault(t, root, WithStrict(true))

	entries, err := v.ReadDir("/first")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/first/a.md" || !entries[0].Metadata.IsShard() {
		t.Errorf("entries = %+v, want /first/a.md", entries)
	}

	w, _ := v.Walk("")
	got := collect(t, w)
	sort.Strings(got)
	want := []string{"/first", "/first/a.md", "/second", "/second/a.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestReadDir_NotADirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "")
	writeFile(t, filepath.Join(root, "filelink"), LinkMarker+filepath.Join(root, "a.md"))
	v := openVault(t, root)

	for _, p := range []Path{"/a.md", "/filelink"} {
		if _, err := v.ReadDir(p); !errors.Is(err, apperr.ErrNotDirectory) {
			t.Errorf("ReadDir(%s) err = %v, want ErrNotDirectory", p, err)
		}
	}
}

func collect(t *testing.T, w *Walk) []string {
	t.Helper()
	var out []string
	for e, err := range w.All() {
		if err != nil {
			t.Fatalf("walk: %v", err)
		}
		out = append(out, e.Path.String())
	}
	return out
}

func TestWalk_YieldsEveryEntryOnce(t *testing.T) {
	root := t.TempDir()
	files := []string{"a.md", "b.txt", "d1/c.md", "d1/d2/e.md", "d1/d2/f.png", "d3/g.md"}
	for _, f := range files {
		writeFile(t, filepath.Join(root, f), "x")
	}
	v := openVault(t, root)

	w, err := v.Walk("")
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	got := collect(t, w)
	sort.Strings(got)

	want := []string{"/a.md", "/b.txt", "/d1", "/d1/c.md", "/d1/d2", "/d1/d2/e.md", "/d1/d2/f.png", "/d3", "/d3/g.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_IsDepthFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "x.md"), "")
	writeFile(t, filepath.Join(root, "b", "y.md"), "")
	v := openVault(t, root)

	w, _ := v.Walk("")
	got := collect(t, w)
	want := []string{"/b", "/b/y.md", "/a", "/a/x.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_ExpandsLinks(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "inside.md"), "")
	writeFile(t, filepath.Join(root, "ext"), LinkMarker+target)
	writeFile(t, filepath.Join(root, "file"), LinkMarker+filepath.Join(target, "inside.md"))
	v := openVault(t, root, WithStrict(true))

	w, _ := v.Walk("")
	got := collect(t, w)
	sort.Strings(got)
	if diff := cmp.Diff([]string{"/ext", "/ext/inside.md", "/file"}, got); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_DanglingLink(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "")
	writeFile(t, filepath.Join(root, "broken"), LinkMarker+filepath.Join(root, "nowhere"))

	var logs bytes.Buffer
	lenient := openVault(t, root, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	w, _ := lenient.Walk("")
	if got := collect(t, w); len(got) != 2 {
		t.Errorf("lenient walk = %v, want 2 entries", got)
	}
	if !strings.Contains(logs.String(), "walk skipped subtree") {
		t.Errorf("missing warning: %s", logs.String())
	}

	strict := openVault(t, root, WithStrict(true))
	w, _ = strict.Walk("")
	var failed bool
	for {
		_, err := w.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, apperr.ErrNotFound) {
			failed = true
		}
	}
	if !failed {
		t.Error("strict walk did not report the dangling link")
	}
}

func TestWriteFileAndSymlink(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	v := openVault(t, root)

	if err := v.WriteFile("/deep/dir/note.md", []byte("# n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := v.ReadFile("/deep/dir/note.md")
	if err != nil || string(data) != "# n" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	if err := v.Symlink("/deep/ext", target); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	m, err := v.Stat("/deep/ext")
	if err != nil || !m.IsSymlink() {
		t.Errorf("Stat = %+v, %v, want symlink", m, err)
	}
	if got, _ := v.Canonicalize("/deep/ext"); got != target {
		t.Errorf("canon = %q, want %q", got, target)
	}

	if err := v.Symlink("/bad.md", target); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("Symlink(.md) err = %v, want ErrInvalidPath", err)
	}

	if err := v.Remove("/deep/ext"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := v.Stat("/deep/ext"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Stat after Remove err = %v, want ErrNotFound", err)
	}
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	v := openVault(t, root)

	if got, ok := v.Rel(filepath.Join(root, "a", "b.md")); !ok || got != "/a/b.md" {
		t.Errorf("Rel = %q, %v, want /a/b.md", got, ok)
	}
	if _, ok := v.Rel(filepath.Dir(root)); ok {
		t.Error("Rel accepted a path outside the root")
	}
}

func TestReadEntry_BelowLinkedDirectory(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "x.md"), "# X")
	writeFile(t, filepath.Join(target, "sub", "y.md"), "# Y")
	writeFile(t, filepath.Join(root, "L"), LinkMarker+target)
	v := openVault(t, root, WithStrict(true))

	w, _ := v.Walk("")
	got := map[string]string{}
	for e, err := range w.All() {
		if err != nil {
			t.Fatalf("walk: %v", err)
		}
		if !e.Metadata.IsShard() {
			continue
		}
		data, err := v.ReadEntry(e)
		if err != nil {
			t.Fatalf("ReadEntry(%s): %v", e.Path, err)
		}
		got[e.Path.String()] = string(data)
	}
	want := map[string]string{"/L/x.md": "# X", "/L/sub/y.md": "# Y"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}

	// Only the final segment of a virtual path is redirected.
	if _, err := v.ReadFile("/L/x.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ReadFile err = %v, want ErrNotFound", err)
	}
}

func TestWriteEntry_BelowLinkedDirectory(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "x.md"), "old")
	writeFile(t, filepath.Join(root, "L"), LinkMarker+target)
	v := openVault(t, root)

	entries, err := v.ReadDir("/L")
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir = %v, %v", entries, err)
	}
	if err := v.WriteEntry(entries[0], []byte("new")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(target, "x.md"))
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

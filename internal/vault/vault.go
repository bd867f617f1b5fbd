// Package vault exposes a host directory as a virtual file system of shards,
// plain files, directories and content-based symbolic links.
//
// A content-based link is a regular file whose first three bytes are the
// marker "@/>"; the rest of the file is the host path it points to.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/natefinch/atomic"

	"github.com/gpabois/emerald/internal/apperr"
)

// LinkMarker opens every content-based link file.
const LinkMarker = "@/>"

// ShardExt is the extension of shard files.
const ShardExt = ".md"

// Vault is a read-mostly view over a host directory. It holds no mutable
// state and may be shared between goroutines.
type Vault struct {
	root        string
	strict      bool
	followLinks int
	logger      *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithStrict makes enumeration fail on entries that cannot be classified or
// expanded, instead of logging and skipping them.
func WithStrict(strict bool) Option {
	return func(v *Vault) {
		v.strict = strict
	}
}

// WithFollowLinks resolves up to n further links when a link target is
// itself a link. Zero keeps single-level resolution.
func WithFollowLinks(n int) Option {
	return func(v *Vault) {
		v.followLinks = max(n, 0)
	}
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// Open returns a vault rooted at root, which must be an existing directory.
func Open(root string, opts ...Option) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("vault: open %s: %w", abs, apperr.ErrNotDirectory)
	}
	v := &Vault{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the absolute host path of the vault root.
func (v *Vault) Root() string { return v.root }

// Canonicalize resolves p to a host path. Every segment must exist on the
// host. When the final segment is a link file, its target is returned.
func (v *Vault) Canonicalize(p Path) (string, error) {
	canon := v.root
	segs := p.Segments()
	for i, seg := range segs {
		if seg == ".." {
			return "", fmt.Errorf("vault: canonicalize %s: %w", p, apperr.ErrInvalidPath)
		}
		canon = filepath.Join(canon, seg)
		info, err := os.Stat(canon)
		if err != nil {
			return "", fmt.Errorf("vault: canonicalize %s: %w", p, notFound(err))
		}
		if i == len(segs)-1 && info.Mode().IsRegular() {
			target, err := v.resolveLink(canon)
			if err != nil {
				return "", fmt.Errorf("vault: canonicalize %s: %w", p, err)
			}
			canon = target
		}
	}
	return canon, nil
}

// resolveLink returns the target of the link file at host, or host itself
// when it is not a link.
func (v *Vault) resolveLink(host string) (string, error) {
	target, ok, err := v.readLink(host)
	if err != nil || !ok {
		return host, err
	}
	seen := map[string]bool{host: true}
	for hop := 0; hop < v.followLinks; hop++ {
		if seen[target] {
			return "", fmt.Errorf("%s: %w", target, apperr.ErrLinkCycle)
		}
		seen[target] = true
		info, err := os.Stat(target)
		if err != nil || !info.Mode().IsRegular() {
			break
		}
		next, ok, err := v.readLink(target)
		if err != nil || !ok {
			break
		}
		target = next
	}
	return target, nil
}

// readLink reads the target stored in a link file. Relative targets are
// taken from the vault root.
func (v *Vault) readLink(host string) (string, bool, error) {
	ok, err := hasMarker(host)
	if err != nil || !ok {
		return "", false, err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return "", false, err
	}
	target := strings.TrimRight(string(data[len(LinkMarker):]), "\r\n")
	if target == "" {
		return "", false, fmt.Errorf("link %s: empty target: %w", host, apperr.ErrMalformed)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(v.root, target)
	}
	return target, true, nil
}

func hasMarker(host string) (bool, error) {
	f, err := os.Open(host)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, len(LinkMarker))
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(buf, []byte(LinkMarker)), nil
}

func notFound(err error) error {
	// ENOTDIR: a file sits where a directory was expected.
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return apperr.ErrNotFound
	}
	return err
}

// classify derives the metadata of the host entry at host.
func classify(host string) (Metadata, error) {
	info, err := os.Stat(host)
	if err != nil {
		return Metadata{}, err
	}
	m := Metadata{Size: info.Size(), ModTime: info.ModTime()}
	switch {
	case info.IsDir():
		m.Type = Directory
	case filepath.Ext(host) == ShardExt:
		m.Type = Shard
	default:
		link, err := hasMarker(host)
		if err != nil {
			return Metadata{}, err
		}
		m.Type = RegularFile
		if link {
			m.Type = Symlink
		}
	}
	return m, nil
}

// Stat classifies the entry at p without following a final link.
func (v *Vault) Stat(p Path) (Metadata, error) {
	host, err := v.hostPath(p)
	if err != nil {
		return Metadata{}, err
	}
	m, err := classify(host)
	if err != nil {
		return Metadata{}, fmt.Errorf("vault: stat %s: %w", p, notFound(err))
	}
	return m, nil
}

// hostPath joins p to the root without resolving links.
func (v *Vault) hostPath(p Path) (string, error) {
	segs := p.Segments()
	for _, seg := range segs {
		if seg == ".." {
			return "", fmt.Errorf("vault: %s: %w", p, apperr.ErrInvalidPath)
		}
	}
	return filepath.Join(append([]string{v.root}, segs...)...), nil
}

// Rel maps a host path under the root back to a vault path.
func (v *Vault) Rel(host string) (Path, bool) {
	rel, err := filepath.Rel(v.root, host)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return Path("/" + filepath.ToSlash(rel)), true
}

// ReadDir lists the entries of the directory at p. When p is a link to a
// directory, the target's entries are listed under p. A link whose target
// is itself a link file is read once more.
func (v *Vault) ReadDir(p Path) ([]DirEntry, error) {
	canon, err := v.Canonicalize(p)
	if err != nil {
		return nil, err
	}
	dir, err := v.dirAt(canon)
	if err != nil {
		return nil, fmt.Errorf("vault: read dir %s: %w", p, err)
	}
	return v.list(p, dir)
}

// dirAt returns the directory named by a canonical host path.
func (v *Vault) dirAt(canon string) (string, error) {
	info, err := os.Stat(canon)
	if err != nil {
		return "", notFound(err)
	}
	if info.IsDir() {
		return canon, nil
	}
	if info.Mode().IsRegular() {
		target, ok, err := v.readLink(canon)
		if err != nil {
			return "", err
		}
		if ok {
			if info, err := os.Stat(target); err != nil {
				return "", notFound(err)
			} else if info.IsDir() {
				return target, nil
			}
		}
	}
	return "", fmt.Errorf("not a directory or a symlink: %w", apperr.ErrNotDirectory)
}

// list reads the host directory dir and addresses its entries under p.
func (v *Vault) list(p Path, dir string) ([]DirEntry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: read dir %s: %w", p, err)
	}
	out := make([]DirEntry, 0, len(des))
	for _, de := range des {
		host := filepath.Join(dir, de.Name())
		m, err := classify(host)
		if err != nil {
			if v.strict {
				return nil, fmt.Errorf("vault: read dir %s: %s: %w", p, de.Name(), err)
			}
			v.logger.Warn("vault: skipped entry",
				slog.String("path", p.Append(de.Name()).String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, DirEntry{Path: p.Append(de.Name()), Metadata: m, host: host})
	}
	return out, nil
}

// entryHost returns the host path an entry stands for, following a link
// entry to its target. Entries not produced by ReadDir or Walk are resolved
// from their path.
func (v *Vault) entryHost(e DirEntry) (string, error) {
	if e.host == "" {
		return v.Canonicalize(e.Path)
	}
	if !e.Metadata.IsSymlink() {
		return e.host, nil
	}
	target, err := v.resolveLink(e.host)
	if err != nil {
		return "", fmt.Errorf("vault: resolve %s: %w", e.Path, err)
	}
	return target, nil
}

// readEntryDir lists the children of a directory or link entry.
func (v *Vault) readEntryDir(e DirEntry) ([]DirEntry, error) {
	canon, err := v.entryHost(e)
	if err != nil {
		return nil, err
	}
	dir, err := v.dirAt(canon)
	if err != nil {
		return nil, fmt.Errorf("vault: read dir %s: %w", e.Path, err)
	}
	return v.list(e.Path, dir)
}

// Lookup returns the entry at p as ReadDir and Walk address it: every
// intermediate segment naming a link is expanded like a directory.
func (v *Vault) Lookup(p Path) (DirEntry, error) {
	segs := p.Segments()
	if len(segs) == 0 {
		return DirEntry{}, fmt.Errorf("vault: lookup %s: %w", p, apperr.ErrInvalidPath)
	}
	var e DirEntry
	dir := v.root
	for i, seg := range segs {
		if seg == ".." {
			return DirEntry{}, fmt.Errorf("vault: lookup %s: %w", p, apperr.ErrInvalidPath)
		}
		if i > 0 {
			canon, err := v.entryHost(e)
			if err != nil {
				return DirEntry{}, err
			}
			if dir, err = v.dirAt(canon); errors.Is(err, apperr.ErrNotDirectory) {
				return DirEntry{}, fmt.Errorf("vault: lookup %s: %w", p, apperr.ErrNotFound)
			} else if err != nil {
				return DirEntry{}, fmt.Errorf("vault: lookup %s: %w", p, err)
			}
		}
		host := filepath.Join(dir, seg)
		m, err := classify(host)
		if err != nil {
			return DirEntry{}, fmt.Errorf("vault: lookup %s: %w", p, notFound(err))
		}
		e = DirEntry{Path: e.Path.Append(seg), Metadata: m, host: host}
	}
	return e, nil
}

// OpenEntry opens an entry yielded by ReadDir or Walk. Entries reached
// through a linked directory have no host counterpart under their virtual
// path, so they are opened from where the listing found them.
func (v *Vault) OpenEntry(e DirEntry) (*os.File, error) {
	canon, err := v.entryHost(e)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(canon)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", e.Path, notFound(err))
	}
	return f, nil
}

// ReadEntry returns the content of an entry yielded by ReadDir or Walk.
func (v *Vault) ReadEntry(e DirEntry) ([]byte, error) {
	f, err := v.OpenEntry(e)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", e.Path, err)
	}
	return data, nil
}

// WriteEntry atomically replaces the content of an entry yielded by ReadDir
// or Walk. As with WriteFile, a link entry is overwritten, not followed.
func (v *Vault) WriteEntry(e DirEntry, data []byte) error {
	if e.host == "" {
		return v.WriteFile(e.Path, data)
	}
	if err := atomic.WriteFile(e.host, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("vault: write %s: %w", e.Path, err)
	}
	return nil
}

// Open opens the file at p for reading, following a final link.
func (v *Vault) Open(p Path) (*os.File, error) {
	canon, err := v.Canonicalize(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(canon)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", p, notFound(err))
	}
	return f, nil
}

// ReadFile returns the content of the file at p.
func (v *Vault) ReadFile(p Path) ([]byte, error) {
	f, err := v.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", p, err)
	}
	return data, nil
}

// WriteFile atomically replaces the file at p, creating parent directories.
// Links are not followed: writing to a link path overwrites the link file.
func (v *Vault) WriteFile(p Path, data []byte) error {
	if p.IsRoot() {
		return fmt.Errorf("vault: write %s: %w", p, apperr.ErrInvalidPath)
	}
	host, err := v.hostPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}
	if err := atomic.WriteFile(host, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("vault: write %s: %w", p, err)
	}
	return nil
}

// Symlink writes a link file at p pointing to target.
func (v *Vault) Symlink(p Path, target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("vault: symlink %s: empty target: %w", p, apperr.ErrInvalidPath)
	}
	if filepath.Ext(p.Base()) == ShardExt {
		return fmt.Errorf("vault: symlink %s: shard extension cannot hold a link: %w", p, apperr.ErrInvalidPath)
	}
	return v.WriteFile(p, []byte(LinkMarker+target))
}

// Remove deletes the entry at p without following links.
func (v *Vault) Remove(p Path) error {
	if p.IsRoot() {
		return fmt.Errorf("vault: remove %s: %w", p, apperr.ErrInvalidPath)
	}
	host, err := v.hostPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(host); err != nil {
		return fmt.Errorf("vault: remove %s: %w", p, notFound(err))
	}
	return nil
}

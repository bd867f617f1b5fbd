// Package shardservice coordinates the vault, shard parsing and the index for
// the HTTP API and the MCP server.
package shardservice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gpabois/emerald/internal/apperr"
	"github.com/gpabois/emerald/internal/checksum"
	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/markdown"
	"github.com/gpabois/emerald/internal/shard"
	"github.com/gpabois/emerald/internal/value"
	"github.com/gpabois/emerald/internal/vault"
)

// ShardDetail is the full representation of a parsed shard.
type ShardDetail struct {
	Path        vault.Path   `json:"path"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Markdown    string       `json:"markdown"`
	Checksum    string       `json:"checksum"`
	Tags        []string     `json:"tags"`
	Links       []string     `json:"links"`
	FrontMatter *value.Value `json:"frontmatter,omitempty"`
	Format      string       `json:"frontmatter_format,omitempty"`
	Tasks       []shard.Task `json:"tasks"`
	Backlinks   []string     `json:"backlinks"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Service coordinates vault and index operations.
type Service struct {
	vault *vault.Vault
	db    index.ShardIndex
	parse []markdown.Option
}

// NewService creates a new shard service. opts are applied to every parse.
func NewService(v *vault.Vault, db index.ShardIndex, opts ...markdown.Option) *Service {
	return &Service{vault: v, db: db, parse: opts}
}

// Vault returns the underlying vault.
func (s *Service) Vault() *vault.Vault { return s.vault }

// Stat classifies the entry at p.
func (s *Service) Stat(_ context.Context, p vault.Path) (vault.Metadata, error) {
	return s.vault.Stat(p.Clean())
}

// ReadDir lists the entries of the directory at p.
func (s *Service) ReadDir(_ context.Context, p vault.Path) ([]vault.DirEntry, error) {
	return s.vault.ReadDir(p.Clean())
}

// Walk collects the virtual walk rooted at p. A positive limit caps the
// number of entries returned.
func (s *Service) Walk(ctx context.Context, p vault.Path, limit int) ([]vault.DirEntry, error) {
	w, err := s.vault.Walk(p.Clean())
	if err != nil {
		return nil, err
	}
	out := []vault.DirEntry{}
	for entry, err := range w.All() {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ReadRaw returns the bytes of the file at p, following a final link.
func (s *Service) ReadRaw(_ context.Context, p vault.Path) ([]byte, error) {
	_, data, err := s.read(p.Clean())
	return data, err
}

// read loads p the way walks address it, so entries below a linked
// directory are readable under the path the index holds for them.
func (s *Service) read(p vault.Path) (vault.DirEntry, []byte, error) {
	e, err := s.vault.Lookup(p)
	if err != nil {
		return vault.DirEntry{}, nil, err
	}
	data, err := s.vault.ReadEntry(e)
	return e, data, err
}

// WriteRaw replaces the file at p. Shards are re-indexed.
func (s *Service) WriteRaw(_ context.Context, p vault.Path, data []byte) error {
	p = p.Clean()
	if err := s.vault.WriteFile(p, data); err != nil {
		return err
	}
	if isShard(p) {
		return index.IndexShard(s.db, p, data, time.Now())
	}
	return nil
}

// Remove deletes the entry at p and drops it from the index.
func (s *Service) Remove(_ context.Context, p vault.Path) error {
	p = p.Clean()
	if err := s.vault.Remove(p); err != nil {
		return err
	}
	if isShard(p) {
		return s.db.DeleteShard(p.String())
	}
	return nil
}

// Link writes a link file at p pointing to target.
func (s *Service) Link(_ context.Context, p vault.Path, target string) error {
	return s.vault.Symlink(p.Clean(), target)
}

// GetShard reads and parses the shard at p and enriches it with backlinks.
func (s *Service) GetShard(_ context.Context, p vault.Path) (*ShardDetail, error) {
	p = p.Clean()
	if !isShard(p) {
		return nil, fmt.Errorf("shardservice: %s is not a shard: %w", p, apperr.ErrInvalidPath)
	}
	_, data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	return s.buildShardDetail(p, data)
}

// CreateShard writes a new shard and indexes it.
func (s *Service) CreateShard(_ context.Context, p vault.Path, content []byte) (*ShardDetail, error) {
	p = p.Clean()
	if !isShard(p) {
		return nil, fmt.Errorf("shardservice: %s is not a shard: %w", p, apperr.ErrInvalidPath)
	}
	if _, err := s.vault.Stat(p); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return s.write(p, content)
}

// UpdateShard rewrites a shard with optimistic concurrency: a non-empty
// ifMatch must equal the checksum of the current content.
func (s *Service) UpdateShard(_ context.Context, p vault.Path, content []byte, ifMatch string) (*ShardDetail, error) {
	p = p.Clean()
	if !isShard(p) {
		return nil, fmt.Errorf("shardservice: %s is not a shard: %w", p, apperr.ErrInvalidPath)
	}
	entry, existing, err := s.read(p)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.vault.WriteEntry(entry, content); err != nil {
		return nil, err
	}
	return s.reindex(p, content)
}

func (s *Service) write(p vault.Path, content []byte) (*ShardDetail, error) {
	if err := s.vault.WriteFile(p, content); err != nil {
		return nil, err
	}
	return s.reindex(p, content)
}

func (s *Service) reindex(p vault.Path, content []byte) (*ShardDetail, error) {
	if err := index.IndexShard(s.db, p, content, time.Now()); err != nil {
		return nil, err
	}
	return s.buildShardDetail(p, content)
}

// ListShards returns paginated shards with an optional tag filter.
func (s *Service) ListShards(_ context.Context, limit, offset int, tag string) ([]index.ShardRow, int, error) {
	rows, total, err := s.db.ListShards(limit, offset, tag)
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		rows[i].Tags = nonNilSlice(rows[i].Tags)
	}
	return nonNilSlice(rows), total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// Tasks lists indexed tasks.
func (s *Service) Tasks(_ context.Context, f index.TaskFilter) ([]index.TaskRow, error) {
	if f.Prefix != "" {
		f.Prefix = vault.Path(f.Prefix).Clean().String()
	}
	rows, err := s.db.Tasks(f)
	return nonNilSlice(rows), err
}

// Backlinks returns the shards linking to p, whether by vault path, by
// root-relative path or by wikilink name.
func (s *Service) Backlinks(_ context.Context, p vault.Path) ([]string, error) {
	var out []string
	for _, target := range linkTargets(p.Clean()) {
		sources, err := s.db.Backlinks(target)
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			if !slices.Contains(out, src) {
				out = append(out, src)
			}
		}
	}
	slices.Sort(out)
	return nonNilSlice(out), nil
}

// Parse parses data as the shard at p without touching the vault.
func (s *Service) Parse(p vault.Path, data []byte) (*shard.Shard, error) {
	return shard.Parse(p.Clean(), data, s.parse...)
}

func (s *Service) buildShardDetail(p vault.Path, data []byte) (*ShardDetail, error) {
	sh, err := s.Parse(p, data)
	if err != nil {
		return nil, err
	}
	bl, err := s.Backlinks(context.Background(), p)
	if err != nil {
		return nil, err
	}
	d := &ShardDetail{
		Path:        p,
		Title:       sh.Title(),
		Content:     string(data),
		Markdown:    sh.Render(),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(sh.Tags()),
		Links:       nonNilSlice(sh.Links()),
		FrontMatter: sh.FrontMatter,
		Tasks:       nonNilSlice(sh.Tasks()),
		Backlinks:   bl,
		UpdatedAt:   time.Now(),
	}
	if sh.FrontMatter != nil {
		d.Format = sh.FrontFormat.String()
	}
	if e, err := s.vault.Lookup(p); err == nil {
		d.UpdatedAt = e.Metadata.ModTime
	}
	return d, nil
}

func isShard(p vault.Path) bool {
	return filepath.Ext(p.Base()) == vault.ShardExt
}

// linkTargets lists the spellings a link to p may use.
func linkTargets(p vault.Path) []string {
	rel := strings.TrimPrefix(p.String(), "/")
	out := []string{p.String(), rel}
	if stem := strings.TrimSuffix(rel, vault.ShardExt); stem != rel {
		out = append(out, stem)
	}
	if base := strings.TrimSuffix(p.Base(), vault.ShardExt); !slices.Contains(out, base) {
		out = append(out, base)
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package index

import (
	"log/slog"
	"time"

	"github.com/gpabois/emerald/internal/checksum"
	"github.com/gpabois/emerald/internal/shard"
	"github.com/gpabois/emerald/internal/vault"
)

type diskShard struct {
	checksum string
	modTime  time.Time
	data     []byte
}

// scan walks the vault and reads every shard it reaches, links included.
func scan(v *vault.Vault, logger *slog.Logger) (map[string]diskShard, error) {
	w, err := v.Walk("")
	if err != nil {
		return nil, err
	}
	out := make(map[string]diskShard)
	for entry, err := range w.All() {
		if err != nil {
			return nil, err
		}
		if !entry.Metadata.IsShard() {
			continue
		}
		data, err := v.ReadEntry(entry)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", entry.Path.String()), slog.String("error", err.Error()))
			continue
		}
		out[entry.Path.String()] = diskShard{
			checksum: checksum.Sum(data),
			modTime:  entry.Metadata.ModTime,
			data:     data,
		}
	}
	return out, nil
}

// Sync brings the index up to date with the vault: shards that are new or
// whose checksum changed are parsed and upserted, shards that can no longer
// be reached are deleted.
func Sync(db *DB, v *vault.Vault, logger *slog.Logger) error {
	return reconcile(db, v, logger, nil)
}

// reconcile is Sync reporting each mutation to notify, which may be nil.
func reconcile(db *DB, v *vault.Vault, logger *slog.Logger, notify func(ChangeKind, string)) error {
	disk, err := scan(v, logger)
	if err != nil {
		return err
	}
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}
	report := func(kind ChangeKind, p string) {
		logger.Debug("sync: "+string(kind), slog.String("path", p))
		if notify != nil {
			notify(kind, p)
		}
	}

	for p := range indexed {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteShard(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		report(Deleted, p)
	}

	for p, d := range disk {
		old, known := indexed[p]
		if old == d.checksum {
			continue
		}
		if err := IndexShard(db, vault.Path(p), d.data, d.modTime); err != nil {
			logger.Warn("sync: index failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if known {
			report(Updated, p)
		} else {
			report(Created, p)
		}
	}
	return nil
}

// IndexShard parses data as the shard at path and upserts it into idx.
func IndexShard(idx ShardIndex, path vault.Path, data []byte, modTime time.Time) error {
	s, err := shard.Parse(path, data)
	if err != nil {
		return err
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}
	row := ShardRow{
		Path:      path.String(),
		Title:     s.Title(),
		Checksum:  checksum.Sum(data),
		Tags:      s.Tags(),
		UpdatedAt: modTime,
	}
	return idx.UpsertShard(row, s.Body(), s.Links(), taskRows(s.Tasks(), 0))
}

func taskRows(tasks []shard.Task, depth int) []TaskRow {
	var out []TaskRow
	for _, t := range tasks {
		out = append(out, TaskRow{
			Source:  t.Source.String(),
			Line:    t.Line,
			Depth:   depth,
			Text:    t.Text,
			Checked: t.Checked,
		})
		out = append(out, taskRows(t.Subtasks, depth+1)...)
	}
	return out
}

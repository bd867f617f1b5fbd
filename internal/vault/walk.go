package vault

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/gpabois/emerald/internal/apperr"
)

// Walk enumerates every entry below a vault path. Entries come off a stack,
// so siblings are visited last-listed first and each subtree is finished
// before the next sibling. Directories and links are expanded.
type Walk struct {
	v     *Vault
	stack []DirEntry
}

// Walk starts a walk below p.
func (v *Vault) Walk(p Path) (*Walk, error) {
	entries, err := v.ReadDir(p)
	if err != nil {
		return nil, err
	}
	return &Walk{v: v, stack: entries}, nil
}

// Next returns the next entry, or io.EOF once the walk is exhausted. In
// strict mode a failure to expand an entry is returned together with that
// entry; the walk can be resumed with the next call.
func (w *Walk) Next() (DirEntry, error) {
	n := len(w.stack)
	if n == 0 {
		return DirEntry{}, io.EOF
	}
	entry := w.stack[n-1]
	w.stack = w.stack[:n-1]

	if w.expandable(entry) {
		children, err := w.v.readEntryDir(entry)
		switch {
		case err != nil && w.v.strict:
			return entry, fmt.Errorf("vault: walk %s: %w", entry.Path, err)
		case err != nil:
			w.v.logger.Warn("vault: walk skipped subtree",
				slog.String("path", entry.Path.String()),
				slog.String("error", err.Error()),
			)
		default:
			w.stack = append(w.stack, children...)
		}
	}
	return entry, nil
}

// expandable reports whether entry has children to push. Links to files
// are leaves; dangling links are expanded so that the error surfaces.
func (w *Walk) expandable(entry DirEntry) bool {
	switch {
	case entry.Metadata.IsDir():
		return true
	case !entry.Metadata.IsSymlink():
		return false
	}
	canon, err := w.v.entryHost(entry)
	if err != nil {
		return true
	}
	_, err = w.v.dirAt(canon)
	return !errors.Is(err, apperr.ErrNotDirectory)
}

// All drains the walk as an iterator. Iteration ends at the first error.
func (w *Walk) All() iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		for {
			entry, err := w.Next()
			if err == io.EOF {
				return
			}
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

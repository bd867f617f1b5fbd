package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gpabois/emerald/internal/apperr"
)

func TestRun_MissingVaultAborts(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "missing")
	cfg.SQLite.Path = filepath.Join(dir, "emerald.db")

	for name, run := range map[string]func(context.Context, ...Option) error{"serve": Run, "mcp": RunMCP} {
		err := run(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
		if !errors.Is(err, apperr.ErrNotDirectory) {
			t.Errorf("%s: err = %v, want ErrNotDirectory", name, err)
		}
	}
	if _, err := os.Stat(cfg.Vault.Path); !os.IsNotExist(err) {
		t.Errorf("vault root was created: %v", err)
	}
}

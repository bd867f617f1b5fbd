package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/gpabois/emerald/internal/script"
)

// REPL is the interactive Lua console.
type REPL struct {
	inst      *script.Instance
	vaultPath string
	history   string
	liner     *liner.State
}

// completions are the names bound by the script engine.
var completions = []string{
	"emerald.fs.walk(",
	"emerald.fs.open(",
	"emerald.fs.read_dir(",
	"emerald.fs.stat(",
	"emerald.fs.READ",
	"emerald.fs.WRITE",
	"emerald.shard(",
	"emerald.run_id",
	"print(",
}

func (r *REPL) historyFile() string {
	if r.history != "" {
		return r.history
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".emerald_history")
}

// Run reads chunks until EOF or Ctrl-C. A chunk that fails to parse at
// end of input keeps reading on a continuation prompt.
func (r *REPL) Run(ctx context.Context) error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(r.historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	fmt.Printf("emerald %s - Lua console (vault=%s, run=%s)\n", version, r.vaultPath, r.inst.ID())
	fmt.Println("Type 'exit' to quit.")

	var pending strings.Builder
	for {
		prompt := "emerald> "
		if pending.Len() > 0 {
			prompt = "      >> "
		}
		line, err := r.liner.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if pending.Len() == 0 {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "exit", "quit", "q":
				return nil
			}
		}
		r.liner.AppendHistory(line)

		pending.WriteString(line)
		pending.WriteByte('\n')
		err = r.inst.Execute(ctx, pending.String())
		if err != nil && incomplete(err) {
			continue
		}
		pending.Reset()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// incomplete reports whether the parser ran out of input.
func incomplete(err error) bool {
	return strings.Contains(err.Error(), "near 'EOF'")
}

func (r *REPL) saveHistory() {
	if path := r.historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	i := strings.LastIndexAny(line, " \t(=,")
	head, word := line[:i+1], line[i+1:]
	var out []string
	for _, c := range completions {
		if strings.HasPrefix(c, word) {
			out = append(out, head+c)
		}
	}
	sort.Strings(out)
	return out
}

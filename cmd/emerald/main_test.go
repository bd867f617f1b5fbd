package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gpabois/emerald/internal/shard"
	"github.com/gpabois/emerald/internal/vault"
)

func TestPrintEntries_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	err := printEntries(&buf, []vault.DirEntry{
		{Path: "/a", Metadata: vault.Metadata{Type: vault.Directory}},
		{Path: "/a/long.md", Metadata: vault.Metadata{Type: vault.Shard}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "/a          directory\n/a/long.md  shard\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrintTasks(t *testing.T) {
	tasks := []shard.Task{
		{Source: "/p.md", Line: 1, Text: "draft", Subtasks: []shard.Task{
			{Source: "/p.md", Line: 2, Text: "outline", Checked: true},
		}},
		{Source: "/p.md", Line: 3, Text: "ship", Checked: true},
	}

	var all bytes.Buffer
	printTasks(&all, tasks, 0, false)
	want := "/p.md:1: [ ] draft\n/p.md:2:   [x] outline\n/p.md:3: [x] ship\n"
	if all.String() != want {
		t.Errorf("all = %q, want %q", all.String(), want)
	}

	var open bytes.Buffer
	printTasks(&open, tasks, 0, true)
	if open.String() != "/p.md:1: [ ] draft\n" {
		t.Errorf("open = %q", open.String())
	}
}

func TestCompleter(t *testing.T) {
	r := &REPL{}
	got := r.completer("local s = emerald.sh")
	if len(got) != 1 || got[0] != "local s = emerald.shard(" {
		t.Errorf("completer = %v", got)
	}
	if got := r.completer("emerald.fs.RE"); len(got) != 1 || got[0] != "emerald.fs.READ" {
		t.Errorf("completer(fs.RE) = %v", got)
	}
}

func TestIncomplete(t *testing.T) {
	if !incomplete(errors.New("<string> line:1(column:12) near 'EOF':   syntax error")) {
		t.Error("EOF parse error should be incomplete")
	}
	if incomplete(errors.New("attempt to call a nil value")) {
		t.Error("runtime error should not be incomplete")
	}
}

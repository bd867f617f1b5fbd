package shard

import (
	"strings"

	"github.com/gpabois/emerald/internal/ast"
	"github.com/gpabois/emerald/internal/vault"
)

// Task is a checkable list item.
type Task struct {
	Source   vault.Path `json:"source"`
	Handle   ast.Handle `json:"-"`
	Checked  bool       `json:"checked"`
	Text     string     `json:"text"`
	Line     int        `json:"line,omitempty"`
	Subtasks []Task     `json:"subtasks,omitempty"`
}

// Tasks returns the top-level tasks of the shard. Tasks nested under a task
// are reported as its subtasks.
func (s *Shard) Tasks() []Task {
	return extractTasks(s.Graph, s.Path, s.Root())
}

func checkable(v ast.Visit) bool {
	item, ok := v.Node.Payload.(ast.ListItem)
	return ok && item.Checked.Checkable()
}

func extractTasks(g *ast.Graph, src vault.Path, h ast.Handle) []Task {
	var out []Task
	for v := range g.Walk(h).Prune(checkable).All() {
		if !checkable(v) {
			continue
		}
		out = append(out, newTask(g, src, v))
	}
	return out
}

func newTask(g *ast.Graph, src vault.Path, v ast.Visit) Task {
	item := v.Node.Payload.(ast.ListItem)
	t := Task{
		Source:  src,
		Handle:  v.Handle,
		Checked: item.Checked == ast.Checked,
	}
	if v.Node.Position != nil {
		t.Line = v.Node.Position.Start.Line
	}
	children := v.Node.Children
	if para, ok := g.FirstChild(v.Handle, ast.KindParagraph); ok {
		t.Text = strings.TrimSpace(g.Render(para))
	}
	for _, c := range children {
		t.Subtasks = append(t.Subtasks, extractTasks(g, src, c)...)
	}
	return t
}

// Flatten lists tasks and all their subtasks depth-first.
func Flatten(tasks []Task) []Task {
	var out []Task
	for _, t := range tasks {
		out = append(out, t)
		out = append(out, Flatten(t.Subtasks)...)
	}
	return out
}

package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/gpabois/emerald/internal/shard"
	"github.com/gpabois/emerald/internal/value"
)

// luaShard parses the shard at a path and returns a table with its path,
// title, tags, links, markdown, front matter and tasks.
func (i *Instance) luaShard(L *lua.LState) int {
	p := pathArg(L, 1).Clean()
	var s *shard.Shard
	var err error
	if e, ok := i.entryArg(L, 1); ok {
		s, err = shard.LoadEntry(i.engine.vault, e, i.engine.parse...)
	} else {
		s, err = shard.Load(i.engine.vault, p, i.engine.parse...)
	}
	if err != nil {
		L.RaiseError("shard %s: %v", p, err)
	}

	t := L.NewTable()
	L.SetField(t, "path", newUserData(L, pathType, s.Path))
	L.SetField(t, "title", lua.LString(s.Title()))
	L.SetField(t, "tags", stringList(L, s.Tags()))
	L.SetField(t, "links", stringList(L, s.Links()))
	L.SetField(t, "markdown", lua.LString(s.Render()))
	if s.FrontMatter != nil {
		L.SetField(t, "frontmatter", toLua(L, *s.FrontMatter))
	}
	L.SetField(t, "tasks", taskList(L, s.Tasks()))
	L.Push(t)
	return 1
}

func stringList(L *lua.LState, items []string) *lua.LTable {
	t := L.CreateTable(len(items), 0)
	for _, s := range items {
		t.Append(lua.LString(s))
	}
	return t
}

func taskList(L *lua.LState, tasks []shard.Task) *lua.LTable {
	t := L.CreateTable(len(tasks), 0)
	for _, task := range tasks {
		item := L.NewTable()
		L.SetField(item, "text", lua.LString(task.Text))
		L.SetField(item, "checked", lua.LBool(task.Checked))
		L.SetField(item, "line", lua.LNumber(task.Line))
		L.SetField(item, "subtasks", taskList(L, task.Subtasks))
		t.Append(item)
	}
	return t
}

// toLua converts a front-matter value. Null becomes nil, so null map
// entries are absent from the resulting table.
func toLua(L *lua.LState, v value.Value) lua.LValue {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case value.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case value.KindInteger, value.KindFloat:
		f, _ := v.AsFloat()
		return lua.LNumber(f)
	case value.KindArray:
		items, _ := v.AsArray()
		t := L.CreateTable(len(items), 0)
		for _, item := range items {
			t.Append(toLua(L, item))
		}
		return t
	case value.KindMap:
		m, _ := v.AsMap()
		t := L.CreateTable(0, m.Len())
		for k, item := range m.All() {
			L.SetField(t, k, toLua(L, item))
		}
		return t
	}
	return lua.LNil
}

package script

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/gpabois/emerald/internal/vault"
)

// Open modes, combinable as a bit set.
const (
	ModeRead  = 2
	ModeWrite = 4
)

const (
	pathType     = "emerald.path"
	metadataType = "emerald.metadata"
	entryType    = "emerald.direntry"
	fileType     = "emerald.file"
)

func registerTypes(L *lua.LState) {
	pmt := L.NewTypeMetatable(pathType)
	L.SetField(pmt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"tostring": pathToString,
		"base":     pathBase,
		"join":     pathJoin,
	}))
	L.SetField(pmt, "__tostring", L.NewFunction(pathToString))
	L.SetField(pmt, "__eq", L.NewFunction(pathEq))

	mmt := L.NewTypeMetatable(metadataType)
	L.SetField(mmt, "__index", L.NewFunction(metadataIndex))

	emt := L.NewTypeMetatable(entryType)
	L.SetField(emt, "__index", L.NewFunction(entryIndex))

	fmeta := L.NewTypeMetatable(fileType)
	L.SetField(fmeta, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"read":  fileRead,
		"write": fileWrite,
		"close": fileClose,
	}))
}

func newUserData(L *lua.LState, typ string, v any) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(typ))
	return ud
}

func checkPath(L *lua.LState, n int) vault.Path {
	if p, ok := L.CheckUserData(n).Value.(vault.Path); ok {
		return p
	}
	L.ArgError(n, "path expected")
	return ""
}

func pathToString(L *lua.LState) int {
	L.Push(lua.LString(checkPath(L, 1).String()))
	return 1
}

func pathBase(L *lua.LState) int {
	L.Push(lua.LString(checkPath(L, 1).Base()))
	return 1
}

func pathJoin(L *lua.LState) int {
	L.Push(newUserData(L, pathType, checkPath(L, 1).Append(L.CheckString(2))))
	return 1
}

func pathEq(L *lua.LState) int {
	L.Push(lua.LBool(checkPath(L, 1) == checkPath(L, 2)))
	return 1
}

func metadataIndex(L *lua.LState) int {
	m, ok := L.CheckUserData(1).Value.(vault.Metadata)
	if !ok {
		L.ArgError(1, "metadata expected")
	}
	switch L.CheckString(2) {
	case "is_shard":
		L.Push(lua.LBool(m.IsShard()))
	case "is_file":
		L.Push(lua.LBool(m.IsFile()))
	case "is_dir":
		L.Push(lua.LBool(m.IsDir()))
	case "is_symlink":
		L.Push(lua.LBool(m.IsSymlink()))
	case "type":
		L.Push(lua.LString(m.Type.String()))
	case "size":
		L.Push(lua.LNumber(m.Size))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

func entryIndex(L *lua.LState) int {
	e, ok := L.CheckUserData(1).Value.(vault.DirEntry)
	if !ok {
		L.ArgError(1, "entry expected")
	}
	switch L.CheckString(2) {
	case "path":
		L.Push(newUserData(L, pathType, e.Path))
	case "metadata":
		L.Push(newUserData(L, metadataType, e.Metadata))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// pathArg accepts a string, a path userdata or an entry userdata.
func pathArg(L *lua.LState, n int) vault.Path {
	if ud, ok := L.Get(n).(*lua.LUserData); ok {
		switch v := ud.Value.(type) {
		case vault.Path:
			return v
		case vault.DirEntry:
			return v.Path
		}
	}
	return vault.Path(L.CheckString(n))
}

// entryArg returns the listed entry argument n refers to, if any.
func (i *Instance) entryArg(L *lua.LState, n int) (vault.DirEntry, bool) {
	if ud, ok := L.Get(n).(*lua.LUserData); ok {
		if e, ok := ud.Value.(vault.DirEntry); ok {
			return e, true
		}
	}
	e, ok := i.listed[pathArg(L, n).Clean()]
	return e, ok
}

func (i *Instance) pushEntry(L *lua.LState, e vault.DirEntry) *lua.LUserData {
	i.listed[e.Path.Clean()] = e
	return newUserData(L, entryType, e)
}

func (i *Instance) fsTable() *lua.LTable {
	L := i.L
	fs := L.NewTable()
	L.SetField(fs, "READ", lua.LNumber(ModeRead))
	L.SetField(fs, "WRITE", lua.LNumber(ModeWrite))
	L.SetFuncs(fs, map[string]lua.LGFunction{
		"walk":     i.fsWalk,
		"open":     i.fsOpen,
		"read_dir": i.fsReadDir,
		"stat":     i.fsStat,
	})
	return fs
}

// fsWalk returns a step function yielding one entry per call and nil once
// the walk is exhausted, so it can drive a generic for loop.
func (i *Instance) fsWalk(L *lua.LState) int {
	p := pathArg(L, 1)
	w, err := i.engine.vault.Walk(p)
	if err != nil {
		L.RaiseError("walk %s: %v", p, err)
	}
	L.Push(L.NewFunction(func(L *lua.LState) int {
		entry, err := w.Next()
		switch {
		case errors.Is(err, io.EOF):
			L.Push(lua.LNil)
		case err != nil:
			L.RaiseError("walk %s: %v", p, err)
		default:
			L.Push(i.pushEntry(L, entry))
		}
		return 1
	}))
	return 1
}

func (i *Instance) fsReadDir(L *lua.LState) int {
	p := pathArg(L, 1)
	entries, err := i.engine.vault.ReadDir(p)
	if err != nil {
		L.RaiseError("read_dir %s: %v", p, err)
	}
	t := L.CreateTable(len(entries), 0)
	for _, e := range entries {
		t.Append(i.pushEntry(L, e))
	}
	L.Push(t)
	return 1
}

func (i *Instance) fsStat(L *lua.LState) int {
	p := pathArg(L, 1)
	m, err := i.engine.vault.Stat(p)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(newUserData(L, metadataType, m))
	return 1
}

// file is an open vault file. Reads stream from the host file; writes are
// buffered and replace the content on close.
type file struct {
	vault  *vault.Vault
	path   vault.Path
	entry  *vault.DirEntry
	mode   int
	r      *os.File
	buf    bytes.Buffer
	closed bool
}

func (f *file) close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	var err error
	if f.r != nil {
		err = f.r.Close()
	}
	if f.mode&ModeWrite != 0 {
		var werr error
		if f.entry != nil {
			werr = f.vault.WriteEntry(*f.entry, f.buf.Bytes())
		} else {
			werr = f.vault.WriteFile(f.path, f.buf.Bytes())
		}
		if werr != nil {
			err = werr
		}
	}
	return err
}

func (i *Instance) fsOpen(L *lua.LState) int {
	p := pathArg(L, 1)
	mode := L.OptInt(2, ModeRead)
	if mode&(ModeRead|ModeWrite) == 0 {
		L.ArgError(2, "mode must include READ or WRITE")
	}
	f := &file{vault: i.engine.vault, path: p, mode: mode}
	if e, ok := i.entryArg(L, 1); ok {
		f.entry = &e
	}
	if mode&ModeRead != 0 {
		var r *os.File
		var err error
		if f.entry != nil {
			r, err = i.engine.vault.OpenEntry(*f.entry)
		} else {
			r, err = i.engine.vault.Open(p)
		}
		if err != nil {
			L.RaiseError("open %s: %v", p, err)
		}
		f.r = r
	}
	i.files = append(i.files, f)
	L.Push(newUserData(L, fileType, f))
	return 1
}

func checkFile(L *lua.LState) *file {
	f, ok := L.CheckUserData(1).Value.(*file)
	if !ok {
		L.ArgError(1, "file expected")
	}
	if f.closed {
		L.RaiseError("%s: file is closed", f.path)
	}
	return f
}

// fileRead reads the rest of the file, or at most n bytes when given a
// number. It returns nil at end of file.
func fileRead(L *lua.LState) int {
	f := checkFile(L)
	if f.r == nil {
		L.RaiseError("%s: not opened for reading", f.path)
	}
	var data []byte
	var err error
	if n, ok := L.Get(2).(lua.LNumber); ok {
		if n < 0 {
			L.ArgError(2, "size must not be negative")
		}
		limit := int64(math.MaxInt64)
		if float64(n) < math.MaxInt64 {
			limit = int64(n)
		}
		// Grows with what is actually read, not with the requested size.
		var buf bytes.Buffer
		_, err = buf.ReadFrom(io.LimitReader(f.r, limit))
		data = buf.Bytes()
	} else {
		data, err = io.ReadAll(f.r)
	}
	if err != nil {
		L.RaiseError("%s: read: %v", f.path, err)
	}
	if len(data) == 0 && L.GetTop() >= 2 {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(data))
	return 1
}

func fileWrite(L *lua.LState) int {
	f := checkFile(L)
	if f.mode&ModeWrite == 0 {
		L.RaiseError("%s: not opened for writing", f.path)
	}
	for n := 2; n <= L.GetTop(); n++ {
		f.buf.WriteString(L.CheckString(n))
	}
	L.Push(L.Get(1))
	return 1
}

func fileClose(L *lua.LState) int {
	f, ok := L.CheckUserData(1).Value.(*file)
	if !ok {
		L.ArgError(1, "file expected")
	}
	if err := f.close(); err != nil {
		L.RaiseError("%s: close: %v", f.path, err)
	}
	return 0
}

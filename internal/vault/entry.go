package vault

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileType classifies a vault entry.
type FileType uint8

const (
	Directory FileType = iota + 1
	RegularFile
	Shard
	Symlink
)

var fileTypeNames = map[FileType]string{
	Directory:   "directory",
	RegularFile: "file",
	Shard:       "shard",
	Symlink:     "symlink",
}

func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("filetype(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Metadata describes one entry.
type Metadata struct {
	Type    FileType
	Size    int64
	ModTime time.Time
}

func (m Metadata) IsDir() bool     { return m.Type == Directory }
func (m Metadata) IsShard() bool   { return m.Type == Shard }
func (m Metadata) IsSymlink() bool { return m.Type == Symlink }

// IsFile is true for plain files and shards.
func (m Metadata) IsFile() bool { return m.Type == RegularFile || m.Type == Shard }

// MarshalJSON flattens the classification flags next to the type.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      FileType  `json:"type"`
		IsDir     bool      `json:"is_dir"`
		IsFile    bool      `json:"is_file"`
		IsShard   bool      `json:"is_shard"`
		IsSymlink bool      `json:"is_symlink"`
		Size      int64     `json:"size"`
		ModTime   time.Time `json:"mod_time"`
	}{m.Type, m.IsDir(), m.IsFile(), m.IsShard(), m.IsSymlink(), m.Size, m.ModTime})
}

// DirEntry is one entry returned by ReadDir or Walk.
type DirEntry struct {
	Path     Path     `json:"path"`
	Metadata Metadata `json:"metadata"`

	// host is where the listing found the entry. It differs from the
	// joined virtual path below a linked directory.
	host string
}

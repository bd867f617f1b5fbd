package vault

import "strings"

// Path is a slash-delimited path inside a vault. The empty Path and "/" both
// name the vault root.
type Path string

// Parts splits p on "/". A leading slash yields an empty first part.
func (p Path) Parts() []string {
	return strings.Split(string(p), "/")
}

// Segments returns the non-empty parts of p.
func (p Path) Segments() []string {
	var out []string
	for _, part := range p.Parts() {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Append returns p with one more segment.
func (p Path) Append(name string) Path {
	return Path(strings.TrimRight(string(p), "/") + "/" + strings.Trim(name, "/"))
}

// Base returns the last segment of p, or "" for the root.
func (p Path) Base() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// IsRoot reports whether p names the vault root.
func (p Path) IsRoot() bool { return len(p.Segments()) == 0 }

func (p Path) String() string { return string(p) }

// Clean returns p in the form used by ReadDir and Walk: a leading slash, no
// empty segments, and "" for the root.
func (p Path) Clean() Path {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return Path("/" + strings.Join(segs, "/"))
}

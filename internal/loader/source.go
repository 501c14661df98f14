package loader

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

type sourceKind int

const (
	kindPath sourceKind = iota + 1
	kindURL
	kindData
)

// Source names where layer data comes from: a local path, a URL or an
// in-memory value.
type Source struct {
	kind  sourceKind
	path  string
	url   string
	value any
}

// Path is a local file.
func Path(p string) Source { return Source{kind: kindPath, path: p} }

// URL is a remote resource fetched with HTTP GET.
func URL(u string) Source { return Source{kind: kindURL, url: u} }

// Data is an in-memory value: raw bytes or text, decoded JSON, or orb/geojson values.
func Data(v any) Source { return Source{kind: kindData, value: v} }

// Parse interprets s as a URL when it has an http(s) scheme and as a path otherwise.
func Parse(s string) Source {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return URL(s)
	}
	return Path(s)
}

// IsZero reports whether the source was never set.
func (s Source) IsZero() bool { return s.kind == 0 }

// IsPath reports whether the source is a local file and returns its path.
func (s Source) IsPath() (string, bool) { return s.path, s.kind == kindPath }

// Ext returns the lower-case file extension of a path or URL source.
func (s Source) Ext() string {
	switch s.kind {
	case kindPath:
		return strings.ToLower(filepath.Ext(s.path))
	case kindURL:
		u, err := url.Parse(s.url)
		if err != nil {
			return ""
		}
		return strings.ToLower(path.Ext(u.Path))
	default:
		return ""
	}
}

func (s Source) String() string {
	switch s.kind {
	case kindPath:
		return s.path
	case kindURL:
		return s.url
	case kindData:
		return fmt.Sprintf("<%T>", s.value)
	default:
		return "<empty>"
	}
}

// siblingURL swaps the extension of a URL path, keeping its query.
func siblingURL(raw, ext string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path)) + ext
	return u.String(), nil
}

package github

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Scheme prefixes input paths that live in a GitHub repository.
const Scheme = "github://"

// ErrInvalidSource is returned for malformed github:// references.
var ErrInvalidSource = errors.New("invalid github source")

// Source addresses a file or directory in a repository:
//
//	github://owner/repo/path/inside/repo@ref
//
// Path may be empty (repository root) and Ref may be empty (default branch).
type Source struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// IsSource reports whether s uses the github:// scheme.
func IsSource(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseSource parses a github:// reference.
func ParseSource(s string) (Source, error) {
	if !IsSource(s) {
		return Source{}, fmt.Errorf("%w: %q lacks %s prefix", ErrInvalidSource, s, Scheme)
	}
	rest := strings.TrimPrefix(s, Scheme)

	var src Source
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		src.Ref = rest[at+1:]
		rest = rest[:at]
		if src.Ref == "" {
			return Source{}, fmt.Errorf("%w: %q has empty ref", ErrInvalidSource, s)
		}
	}

	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Source{}, fmt.Errorf("%w: %q needs owner and repo", ErrInvalidSource, s)
	}
	src.Owner, src.Repo = parts[0], parts[1]
	if len(parts) == 3 {
		src.Path = path.Clean(parts[2])
	}
	return src, nil
}

// At returns the source for a path inside the same repository and ref.
func (s Source) At(p string) Source {
	s.Path = p
	return s
}

// String formats the source back into its github:// form.
func (s Source) String() string {
	out := Scheme + s.Owner + "/" + s.Repo
	if s.Path != "" {
		out += "/" + s.Path
	}
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

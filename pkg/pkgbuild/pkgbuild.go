// Package pkgbuild extracts metadata from PKGBUILD files so commands can
// name the package they act on without asking the user.
package pkgbuild

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

var (
	pkgnameRe = regexp.MustCompile(`(?m)^pkgname=['"]?([^'"\s]+)['"]?`)
	pkgverRe  = regexp.MustCompile(`(?m)^pkgver=['"]?([^'"\s]+)['"]?`)
)

// Info is the subset of PKGBUILD fields the build flow needs.
type Info struct {
	Name    string
	Version string
	// Path is where the PKGBUILD was found, relative paths preserved as
	// given by the caller.
	Path string
}

// Find walks root for the first PKGBUILD and parses it. Directories are
// visited in lexical order, so a PKGBUILD at the root wins over nested ones.
func Find(root string) (*Info, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip VCS internals; a PKGBUILD under .git is never the real one.
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() == "PKGBUILD" {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, cerr.Wrapf(err, "searching for PKGBUILD under %s", root)
	}
	if found == "" {
		return nil, cerr.Newf("no PKGBUILD found under %s", root)
	}
	return Parse(found)
}

// Parse reads one PKGBUILD. pkgname is required; pkgver may be absent when
// generated by a pkgver() function.
func Parse(path string) (*Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "reading %s", path)
	}

	m := pkgnameRe.FindSubmatch(content)
	if m == nil {
		return nil, cerr.Newf("%s has no pkgname", path)
	}
	info := &Info{
		Name: strings.TrimSpace(string(m[1])),
		Path: path,
	}
	if v := pkgverRe.FindSubmatch(content); v != nil {
		info.Version = strings.TrimSpace(string(v[1]))
	}
	return info, nil
}

package pkgbuild

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

var (
	breakingRe = regexp.MustCompile(`^[a-z]+(\([^)]*\))?!:`)
	featRe     = regexp.MustCompile(`^feat(\([^)]*\))?:`)
)

// BumpedVersion computes the next MAJOR.MINOR.PATCH version from a
// conventional commit message: a breaking change bumps major, feat bumps
// minor, anything else bumps patch.
func BumpedVersion(current, message string) (string, error) {
	parts := strings.SplitN(current, ".", 3)
	if len(parts) != 3 {
		return "", cerr.Newf("pkgver %q is not MAJOR.MINOR.PATCH", current)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", cerr.Newf("pkgver %q is not MAJOR.MINOR.PATCH", current)
		}
		nums[i] = n
	}

	switch {
	case breakingRe.MatchString(message) || strings.Contains(message, "BREAKING CHANGE"):
		nums[0]++
		nums[1], nums[2] = 0, 0
	case featRe.MatchString(message):
		nums[1]++
		nums[2] = 0
	default:
		nums[2]++
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]), nil
}

// BumpFile rewrites the pkgver in a PKGBUILD according to the commit message
// and returns the new version.
func BumpFile(path, message string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", cerr.Wrapf(err, "reading %s", path)
	}

	m := pkgverRe.FindSubmatch(content)
	if m == nil {
		return "", cerr.Newf("%s has no pkgver to bump", path)
	}
	next, err := BumpedVersion(strings.TrimSpace(string(m[1])), message)
	if err != nil {
		return "", cerr.Wrapf(err, "bumping %s", path)
	}

	updated := pkgverRe.ReplaceAll(content, []byte("pkgver="+next))
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		return "", cerr.Wrapf(err, "writing %s", path)
	}
	return next, nil
}

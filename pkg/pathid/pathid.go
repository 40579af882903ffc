// Package pathid implements the canonical per-path identity used as the
// MetaStore primary key. It generalizes the path-normalization and
// comparison helpers mutagen keeps in pkg/synchronization/core/path.go,
// adding the case/Unicode folding rules needed for cross-platform identity
// rather than plain DFS ordering.
package pathid

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Flavor identifies the filesystem identity rules to apply to a path.
type Flavor uint8

const (
	// FlavorPOSIX treats paths byte-exact: two paths are the same identity
	// only if they are byte-identical.
	FlavorPOSIX Flavor = iota
	// FlavorHFS applies the case-insensitive, Unicode-NFD-normalized rules
	// of a default HFS+/APFS volume.
	FlavorHFS
	// FlavorNTFS applies the case-insensitive rules of an NTFS volume.
	FlavorNTFS
)

// ID is the canonical identity for a path, suitable for use as a MetaStore
// key. Two paths that the target filesystem considers equal always produce
// equal IDs; two paths it distinguishes never do.
type ID string

// Compute derives the canonical ID for a path under the given flavor.
//
// HFS+ upper-cases (rather than lower-cases) after NFD normalization: some
// characters in the Unicode confusable ranges round-trip correctly only
// under upper-casing.
func Compute(flavor Flavor, path string) ID {
	switch flavor {
	case FlavorPOSIX:
		return ID(path)
	case FlavorHFS:
		normalized := norm.NFD.String(path)
		return ID(strings.ToUpper(normalized))
	case FlavorNTFS:
		return ID(strings.ToUpper(path))
	default:
		return ID(path)
	}
}

// IsChild reports whether child names a path strictly inside parent,
// operating on canonical IDs rather than raw paths so that the comparison
// respects the flavor's case/Unicode folding.
func IsChild(parent, child ID) bool {
	if parent == "" {
		return child != ""
	}
	p := string(parent)
	c := string(child)
	return strings.HasPrefix(c, p+"/") && len(c) > len(p)+1
}

// Sep is the path separator used for all canonical, root-relative paths
// handled by this package and the rest of the core; it is independent of
// os.PathSeparator since documents are addressed relative to a
// synchronization root using forward slashes regardless of host platform.
const Sep = "/"

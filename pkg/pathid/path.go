package pathid

import (
	"path"
	"strings"
)

// Normalize puts a human path into the canonical form documents are stored
// under: no leading separator, "." components collapsed, and ".." segments
// resolved against the components before them. A leading ".." that climbs
// above the synchronization root is kept as is, since path.Clean does not
// drop it from a relative path; EscapesRoot reports such paths.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	cleaned := path.Clean(strings.TrimPrefix(p, "/"))
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// EscapesRoot reports whether the raw path climbs above the synchronization
// root once cleaned (i.e. contains an unresolvable ".." segment).
func EscapesRoot(p string) bool {
	trimmed := strings.TrimPrefix(p, "/")
	cleaned := path.Clean(trimmed)
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

// Join is a fast alternative to path.Join for root-relative synchronization
// paths, avoiding the cleaning overhead path.Join incurs. It mirrors
// mutagen's core.pathJoin. The leaf must be non-empty.
func Join(base, leaf string) string {
	if leaf == "" {
		panic("pathid: empty leaf name")
	}
	if base == "" {
		return leaf
	}
	return base + "/" + leaf
}

// Dir is a fast alternative to path.Dir for root-relative synchronization
// paths, mirroring mutagen's core.pathDir. The path must be non-empty.
func Dir(p string) string {
	if p == "" {
		panic("pathid: empty path")
	}
	if i := strings.LastIndexByte(p, '/'); i == -1 {
		return ""
	} else if i == 0 {
		panic("pathid: empty parent path")
	} else {
		return p[:i]
	}
}

// Base is a fast alternative to path.Base for root-relative synchronization
// paths, mirroring mutagen's core.PathBase.
func Base(p string) string {
	if p == "" {
		return ""
	}
	i := strings.LastIndexByte(p, '/')
	if i == -1 {
		return p
	}
	if i == len(p)-1 {
		panic("pathid: empty base name")
	}
	return p[i+1:]
}

// Less performs a DFS-order comparison between two root-relative paths. It
// reports whether first sorts before second in parent-before-child,
// component-wise order, mirroring mutagen's core.pathLess.
func Less(first, second string) bool {
	if first == second {
		return false
	} else if first == "" {
		return true
	} else if second == "" {
		return false
	}

	for {
		var firstHead, secondHead string
		firstIdx := strings.IndexByte(first, '/')
		if firstIdx == -1 {
			firstHead = first
		} else {
			firstHead = first[:firstIdx]
		}
		secondIdx := strings.IndexByte(second, '/')
		if secondIdx == -1 {
			secondHead = second
		} else {
			secondHead = second[:secondIdx]
		}

		if firstHead < secondHead {
			return true
		} else if secondHead < firstHead {
			return false
		}

		if firstIdx == -1 {
			return true
		} else if secondIdx == -1 {
			return false
		}
		first = first[firstIdx+1:]
		second = second[secondIdx+1:]
	}
}

package changebuilder

import (
	"strings"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
)

// Platform identifies which reserved-character validation table applies to
// the opposite side of a change.
type Platform uint8

const (
	// PlatformWindows applies the NTFS reserved-character and
	// reserved-device-name rules.
	PlatformWindows Platform = iota
	// PlatformPOSIX applies no additional restrictions beyond the null byte
	// and path separator, which are already excluded by construction.
	PlatformPOSIX
)

// windowsReserved is the set of characters forbidden in a single Windows
// path segment.
const windowsReserved = `<>:"/\|?*`

// windowsDeviceNames are reserved regardless of extension on Windows.
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// segmentViolation checks a single path segment against platform's reserved
// rules, returning the offending character/name set description if any.
func segmentViolation(platform Platform, segment string) (string, bool) {
	if platform != PlatformWindows {
		return "", false
	}
	if segment == "" {
		return "", false
	}

	for _, r := range segment {
		if strings.ContainsRune(windowsReserved, r) {
			return windowsReserved, true
		}
	}
	if strings.HasSuffix(segment, " ") || strings.HasSuffix(segment, ".") {
		return "trailing space or dot", true
	}

	name := segment
	if idx := strings.IndexByte(segment, '.'); idx != -1 {
		name = segment[:idx]
	}
	if windowsDeviceNames[strings.ToUpper(name)] {
		return "reserved device name", true
	}

	return "", false
}

// Validate checks every segment of path against platform's reserved rules
// and returns the Incompatibility list of violations found, if any.
func Validate(platform Platform, path string) []document.Incompatibility {
	var incompatibilities []document.Incompatibility
	for _, segment := range strings.Split(path, "/") {
		if reserved, bad := segmentViolation(platform, segment); bad {
			incompatibilities = append(incompatibilities, document.Incompatibility{
				Segment:  segment,
				Reserved: reserved,
			})
		}
	}
	return incompatibilities
}

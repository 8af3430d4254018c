package entity

import "strings"

// DefaultAssetPrefix is where the store keeps terrain-encoded map images.
const DefaultAssetPrefix = "data/mapfiles/"

// NormalizeMapfile rewrites a locally picked file path into the canonical
// asset-relative form: the local directory part (drive letters, browser
// "fakepath" placeholders, home or absolute directories) is dropped and the
// asset prefix is put in its place. Values already under the prefix, and other
// relative paths with a directory, are returned unchanged.
func NormalizeMapfile(raw, prefix string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return v
	}
	prefix = CanonicalPrefix(prefix)
	if strings.HasPrefix(v, prefix) {
		return v
	}
	if !isLocalPath(v) {
		return v
	}
	base := v[strings.LastIndexAny(v, `/\`)+1:]
	if base == "" {
		return v
	}
	return prefix + base
}

// CanonicalPrefix returns prefix with exactly one trailing slash, falling
// back to DefaultAssetPrefix.
func CanonicalPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.ReplaceAll(prefix, `\`, "/"))
	if prefix == "" {
		return DefaultAssetPrefix
	}
	return strings.TrimRight(prefix, "/") + "/"
}

func isLocalPath(v string) bool {
	switch {
	case strings.Contains(v, `\`):
		return true
	case len(v) >= 2 && v[1] == ':' && isLetter(v[0]):
		return true
	case strings.HasPrefix(v, "/"), strings.HasPrefix(v, "~"), strings.HasPrefix(v, "file://"):
		return true
	case !strings.Contains(v, "/"):
		// bare file name as returned by some file pickers
		return true
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

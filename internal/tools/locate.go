package tools

import "strings"

// toFileURL prefixes a bare filesystem path with file://; the target
// catalogs scripts by URL, never by raw path.
func toFileURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

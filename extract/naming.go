package extract

import (
	"path"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

// splitExt splits name into stem and extension. A leading dot does not
// start an extension.
func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// outputName returns the local file name for a remote path.
func outputName(remotePath string, includePath, appendTimestamp bool, now time.Time) string {
	var name string
	if includePath {
		name = strings.NewReplacer("/", "_", `\`, "_").Replace(remotePath)
		name = strings.TrimLeft(name, "_")
	} else {
		name = path.Base(remotePath)
	}
	if appendTimestamp {
		stem, ext := splitExt(name)
		name = stem + "_" + now.Format(timestampLayout) + ext
	}
	return name
}

// tableName returns the output table file name, always ending in .csv.
func tableName(configured, remotePath string) string {
	name := configured
	if name == "" {
		name, _ = splitExt(path.Base(remotePath))
	}
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	return name
}

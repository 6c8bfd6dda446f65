package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Supported file formats.
const (
	FormatAuto    = "auto"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Load reads a dataset file. With FormatAuto (or "") the extension decides.
func Load(path, format string) (*Frame, error) {
	if format == "" || format == FormatAuto {
		format = DetectFormat(path)
	}

	switch format {
	case FormatParquet:
		return LoadParquet(path)
	case FormatCSV:
		return LoadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format for %s", path)
	}
}

// DetectFormat maps a file extension to a format name.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return FormatParquet
	case ".csv":
		return FormatCSV
	default:
		return ""
	}
}

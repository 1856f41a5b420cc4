// Package analytics turns a materialized node tree into per-category storage
// usage totals for the station's dashboard.
package analytics

import (
	"strconv"
	"strings"

	"bhs-files/internal/models"
)

// QuotaMB is the fixed storage ceiling used for percentage displays. It is
// never enforced as a write-time limit; uploads past the quota still succeed.
const QuotaMB = 1024.0

// Category buckets a file by its icon tag.
type Category int

const (
	CategoryOther Category = iota
	CategoryImage
	CategoryDocument
	CategoryVideo
	CategorySpreadsheet
)

func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryDocument:
		return "document"
	case CategoryVideo:
		return "video"
	case CategorySpreadsheet:
		return "spreadsheet"
	default:
		return "other"
	}
}

// Classify maps a stored icon tag to exactly one bucket. Unknown tags land in
// CategoryOther and contribute to the running total only.
func Classify(icon string) Category {
	switch strings.ToLower(icon) {
	case "image", "jpg", "png", "jpeg":
		return CategoryImage
	case "doc", "docx", "pdf":
		return CategoryDocument
	case "mp4", "avi", "mov", "video":
		return CategoryVideo
	case "xls", "xlsx":
		return CategorySpreadsheet
	default:
		return CategoryOther
	}
}

// SizeToMB parses a human-readable size string of the form "<decimal> <unit>"
// with unit in {KB, MB, GB} (case-insensitive, MB when omitted) into
// megabytes. A malformed numeric portion yields 0; parsing never fails hard.
func SizeToMB(size string) float64 {
	fields := strings.Fields(size)
	if len(fields) == 0 {
		return 0
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}

	unit := "MB"
	if len(fields) > 1 {
		unit = strings.ToUpper(fields[1])
	}

	switch unit {
	case "KB":
		return value / 1024
	case "GB":
		return value * 1024
	case "MB":
		return value
	default:
		return value
	}
}

// Flatten walks the tree depth-first and returns every node, folders
// included, in a single slice.
func Flatten(tree []models.Node) []models.Node {
	var flat []models.Node
	for _, node := range tree {
		children := node.Children
		node.Children = nil
		flat = append(flat, node)
		flat = append(flat, Flatten(children)...)
	}
	return flat
}

// Usage is the per-category megabyte breakdown of the tree. Uncategorized
// files count toward Total only.
type Usage struct {
	TotalMB       float64 `json:"total_mb"`
	ImageMB       float64 `json:"image_mb"`
	DocumentMB    float64 `json:"document_mb"`
	VideoMB       float64 `json:"video_mb"`
	SpreadsheetMB float64 `json:"spreadsheet_mb"`
}

// Summarize classifies every file in the tree and sums sizes per bucket.
// Folder nodes never contribute, whatever their size field says.
func Summarize(tree []models.Node) Usage {
	var usage Usage

	for _, node := range Flatten(tree) {
		if node.NodeType != models.NodeTypeFile {
			continue
		}

		mb := SizeToMB(node.Size)
		usage.TotalMB += mb

		switch Classify(node.Icon) {
		case CategoryImage:
			usage.ImageMB += mb
		case CategoryDocument:
			usage.DocumentMB += mb
		case CategoryVideo:
			usage.VideoMB += mb
		case CategorySpreadsheet:
			usage.SpreadsheetMB += mb
		}
	}

	return usage
}

// PercentOfQuota converts a megabyte quantity to a share of the fixed quota,
// clamped to [0, 100] for progress-style rendering. The raw MB values may
// exceed the quota; only the percentage is capped.
func PercentOfQuota(mb float64) float64 {
	pct := mb / QuotaMB * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Package scanner discovers datasets on the agent's local storage.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// Scan treats every directory directly under root as one dataset and
// walks it for total size, file count and dominant file format. A
// missing root is not an error; the node simply has no datasets yet.
func Scan(root string) ([]api.DatasetReport, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read datasets root: %w", err)
	}

	var reports []api.DatasetReport
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(root, entry.Name())
		report, err := scanDataset(entry.Name(), path)
		if err != nil {
			// one unreadable dataset must not hide the others
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func scanDataset(name, path string) (api.DatasetReport, error) {
	var totalBytes int64
	var fileCount int
	formats := make(map[string]int)

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		totalBytes += info.Size()
		fileCount++
		if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p)), "."); ext != "" {
			formats[ext]++
		}
		return nil
	})
	if err != nil {
		return api.DatasetReport{}, err
	}

	report := api.DatasetReport{
		Name:      name,
		LocalPath: path,
		SizeBytes: &totalBytes,
		FileCount: &fileCount,
	}
	if format := dominantFormat(formats); format != "" {
		report.Format = &format
	}
	return report, nil
}

// dominantFormat returns the most common file extension, ties broken
// alphabetically so repeated scans report the same value.
func dominantFormat(formats map[string]int) string {
	best := ""
	bestCount := 0
	for format, count := range formats {
		if count > bestCount || (count == bestCount && format < best) {
			best = format
			bestCount = count
		}
	}
	return best
}

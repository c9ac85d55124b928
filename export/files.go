package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// exportedSuffixes are the files shown in the export folder listing.
var exportedSuffixes = []string{".xlsx", ".xlsx.gz", ".csv", ".csv.gz", ".log"}

// File is an entry of the export folder listing.
type File struct {
	Name     string    `json:"name"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
	// HumanSize is Size in IEC units, e.g. "1.5 KiB".
	HumanSize string `json:"human_size"`
}

// Exported reports whether name is a file the export folder listing shows.
func Exported(name string) bool {
	for _, s := range exportedSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// ListExportedFiles lists the exported data and log files of uploadFolder,
// ordered by name. A missing export folder lists nothing.
func ListExportedFiles(uploadFolder string) ([]File, error) {
	dir := filepath.Join(uploadFolder, ExportFolder)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []File
	for _, e := range entries {
		if e.IsDir() || !Exported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, File{
			Name:      e.Name(),
			Modified:  info.ModTime(),
			Size:      info.Size(),
			HumanSize: humanize.IBytes(uint64(info.Size())),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ExportedPath resolves name inside the export folder of uploadFolder. Only
// plain file names of listed files are accepted.
func ExportedPath(uploadFolder string, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !Exported(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(uploadFolder, ExportFolder, name), nil
}

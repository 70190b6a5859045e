package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is one discovered lesson document.
type File struct {
	Path string
	Name string
}

// FindDocxFiles resolves target to a list of .docx documents. A file target
// must itself be a .docx; a directory target is scanned, recursively when
// asked. Word lock files (~$...) are skipped.
func FindDocxFiles(target string, recursive bool) ([]File, error) {
	resolved, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}

	if !info.IsDir() {
		if !isDocx(resolved) {
			return nil, fmt.Errorf("not a .docx file: %s", resolved)
		}
		return []File{{Path: resolved, Name: baseName(resolved)}}, nil
	}

	var files []File
	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != resolved && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if isDocx(path) {
			files = append(files, File{Path: path, Name: baseName(path)})
		}
		return nil
	}
	if err := filepath.WalkDir(resolved, walk); err != nil {
		return nil, fmt.Errorf("scan %s: %w", resolved, err)
	}
	return files, nil
}

func isDocx(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(strings.ToLower(name), ".docx") &&
		!strings.HasPrefix(name, "~$")
}

func baseName(path string) string {
	name := filepath.Base(path)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".docx") {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"docqa/internal/port"
)

// Walker lists the text documents under a directory that match the include
// globs and none of the exclude globs. Globs are matched against
// slash-separated paths relative to the root.
type Walker struct {
	includes []string
	excludes []string
	maxSize  int64
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// WithMaxSize skips files larger than n bytes. Zero disables the limit.
func (w *Walker) WithMaxSize(n int64) *Walker {
	w.maxSize = n
	return w
}

// Walk returns matching files sorted by path. root may also name a single
// file, which is returned as is.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []port.FileInfo{{Path: root, ModTime: info.ModTime().Unix(), Size: info.Size()}}, nil
	}

	var files []port.FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && w.shouldExclude(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !w.shouldInclude(rel) || w.shouldExclude(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if w.maxSize > 0 && fi.Size() > w.maxSize {
			return nil
		}

		files = append(files, port.FileInfo{
			Path:    path,
			ModTime: fi.ModTime().Unix(),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// Reader reads text documents from disk.
type Reader struct{}

// ReadFile returns the file content, rejecting content that is not UTF-8.
func (Reader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", path)
	}
	return string(data), nil
}

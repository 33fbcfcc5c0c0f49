package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/prune/pkg/syntax"
)

// ErrInvalidPath is returned when an input path cannot be read.
var ErrInvalidPath = errors.New("invalid input path")

// Discover lists the files under paths that lang handles, sorted and without
// duplicates. Directories are walked recursively; hidden and vendored trees
// are skipped. Files named explicitly are always kept.
func Discover(paths []string, lang *syntax.Language) ([]string, error) {
	seen := make(map[string]bool)

	var files []string

	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
		}

		if !info.IsDir() {
			add(root)

			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}

			rel = filepath.ToSlash(rel)

			if entry.IsDir() {
				if rel != "." && skipDir(rel) {
					return filepath.SkipDir
				}

				return nil
			}

			if !entry.Type().IsRegular() || enry.IsDotFile(rel) || enry.IsVendor(rel) {
				return nil
			}

			if handles(lang, path) {
				add(path)
			}

			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", root, walkErr)
		}
	}

	slices.Sort(files)

	return files, nil
}

func skipDir(rel string) bool {
	return strings.HasPrefix(filepath.Base(rel), ".") || enry.IsVendor(rel+"/")
}

// handles matches by extension, falling back to enry detection for grammars
// registered without extensions.
func handles(lang *syntax.Language, path string) bool {
	if len(lang.Extensions) > 0 {
		return lang.HandlesPath(path)
	}

	return strings.EqualFold(enry.GetLanguage(filepath.Base(path), nil), lang.Name)
}

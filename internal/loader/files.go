package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"featurecore/pkg/domain"
)

const moduleExt = ".hcl"

// ignoreList holds .featureignore patterns. Patterns are matched against
// slash-separated paths relative to the repository root. A pattern without
// a slash matches a base name at any depth and a leading "**/" matches any
// directory prefix. Matching a directory excludes everything below it.
type ignoreList []string

func readIgnoreFile(root string) (ignoreList, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.LoadError{File: IgnoreFileName, Err: err}
	}
	defer func() { _ = f.Close() }()

	var list ignoreList
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.Trim(filepath.ToSlash(line), "/")
		line = strings.TrimPrefix(line, "./")
		if _, err := path.Match(line, ""); err != nil {
			return nil, &domain.LoadError{File: IgnoreFileName, Err: fmt.Errorf("bad pattern %q: %w", line, err)}
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.LoadError{File: IgnoreFileName, Err: err}
	}
	return list, nil
}

func (l ignoreList) match(rel string) bool {
	for _, pattern := range l {
		if globMatch(pattern, rel) {
			return true
		}
	}
	return false
}

func globMatch(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(rel))
		return ok
	}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		parts := strings.Split(rel, "/")
		for i := range parts {
			if ok, _ := path.Match(rest, strings.Join(parts[i:], "/")); ok {
				return true
			}
		}
	}
	return false
}

// findModules returns the declaration files below root, relative and slash
// separated, in lexicographic order. Hidden directories are skipped.
func findModules(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &domain.LoadError{File: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &domain.LoadError{File: root, Err: errors.New("repository root is not a directory")}
	}
	ignored, err := readIgnoreFile(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignored.match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != moduleExt || ignored.match(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, &domain.LoadError{File: root, Err: err}
	}
	sort.Strings(files)
	return files, nil
}

// moduleName converts a relative file path or an import label into the
// dotted module name.
func moduleName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), moduleExt)
	return strings.ReplaceAll(rel, "/", ".")
}

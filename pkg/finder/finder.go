package finder

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// DefaultExtensions are the template extensions searched in directories.
var DefaultExtensions = []string{".xml", ".xhtml", ".html"}

// TemplateFinder is responsible for finding template files
type TemplateFinder interface {
	// FindTemplates resolves files, directories and ** globs to template files
	FindTemplates(ctx context.Context, patterns []string) ([]FileInfo, error)
}

// FileInfo represents information about a found template file
type FileInfo struct {
	Path    string
	Content []byte
}

// DefaultFinder is the default implementation of TemplateFinder
type DefaultFinder struct {
	fs         afero.Fs
	extensions []string
}

// NewDefaultFinder creates a new DefaultFinder. Without extensions the
// DefaultExtensions are used.
func NewDefaultFinder(fs afero.Fs, extensions ...string) *DefaultFinder {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &DefaultFinder{fs: fs, extensions: extensions}
}

// FindTemplates implements TemplateFinder. Files named explicitly are
// returned whatever their extension, directories are searched recursively
// for the finder's extensions. The result is sorted and free of duplicates.
func (f *DefaultFinder) FindTemplates(ctx context.Context, patterns []string) ([]FileInfo, error) {
	var paths []string
	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := f.resolve(pattern)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	slices.Sort(paths)
	paths = slices.Compact(paths)

	out := make([]FileInfo, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := afero.ReadFile(f.fs, path)
		if err != nil {
			return nil, errors.Errorf("reading %s: %w", path, err)
		}
		out = append(out, FileInfo{Path: path, Content: content})
	}
	return out, nil
}

func (f *DefaultFinder) resolve(pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)

	if !strings.ContainsAny(pattern, "*?[{") {
		info, err := f.fs.Stat(pattern)
		if err != nil {
			return nil, errors.Errorf("reading %s: %w", pattern, err)
		}
		if !info.IsDir() {
			return []string{pattern}, nil
		}
		pattern = strings.TrimSuffix(pattern, "/") + "/**/*{" + strings.Join(f.extensions, ",") + "}"
	}

	base, rest := doublestar.SplitPattern(pattern)
	matches, err := doublestar.Glob(f.globFS(base), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Errorf("expanding %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, errors.Errorf("no templates match %s", pattern)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.ToSlash(filepath.Join(base, m)))
	}
	return out, nil
}

// globFS roots the finder's filesystem at base. A BasePathFs rooted at the
// working directory rejects every nested path, so relative patterns glob the
// filesystem itself.
func (f *DefaultFinder) globFS(base string) afero.IOFS {
	if base == "" || base == "." {
		return afero.NewIOFS(f.fs)
	}
	return afero.NewIOFS(afero.NewBasePathFs(f.fs, base))
}

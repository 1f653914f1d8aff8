// Package snapshot captures the project view the pipeline analyzes.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/agentrules/agentrules/internal/domain"
	"github.com/agentrules/agentrules/internal/filter"
	"github.com/agentrules/agentrules/internal/git"
)

// Defaults for Options.
const (
	DefaultMaxFileSize = 256 * 1024
	DefaultMaxFiles    = 2000
	DefaultTreeDepth   = 5
)

// Options controls what Capture reads.
type Options struct {
	Rules       filter.Rules // Exclusions in addition to filter.DefaultRules
	MaxFileSize int64        // Larger files are skipped
	MaxFiles    int          // Capture stops after this many files
	TreeDepth   int          // Depth of the rendered tree
	UseGit      bool         // List files through git when root is a repository
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	if o.TreeDepth <= 0 {
		o.TreeDepth = DefaultTreeDepth
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Capture reads the project at root into an immutable snapshot. Binary,
// oversized and excluded files are skipped. Files are ordered by path.
func Capture(ctx context.Context, root string, opts Options) (*domain.Snapshot, error) {
	opts = opts.withDefaults()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", abs)
	}

	f, err := filter.New(filter.DefaultRules().Merge(opts.Rules))
	if err != nil {
		return nil, fmt.Errorf("invalid exclusion pattern: %w", err)
	}

	var candidates []string
	if opts.UseGit && git.IsRepo(ctx, abs) {
		candidates, err = git.ListFiles(ctx, abs)
		if err != nil {
			opts.Logger.Warn("git listing failed, walking directory", zap.Error(err))
			candidates = nil
		}
	}
	if candidates == nil {
		candidates, err = walk(ctx, abs, f)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(candidates)

	var files []domain.FileEntry
	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Exclude(rel) {
			continue
		}
		if len(files) >= opts.MaxFiles {
			opts.Logger.Warn("file limit reached, remaining files skipped", zap.Int("max_files", opts.MaxFiles))
			break
		}
		entry, ok, err := readFile(abs, rel, opts.MaxFileSize)
		if err != nil {
			opts.Logger.Debug("skipping unreadable file", zap.String("file", rel), zap.Error(err))
			continue
		}
		if !ok {
			opts.Logger.Debug("skipping binary or oversized file", zap.String("file", rel))
			continue
		}
		files = append(files, entry)
	}

	paths := make([]string, len(files))
	for i, fe := range files {
		paths[i] = fe.Path
	}
	tree := RenderTree(filepath.Base(abs), paths, opts.TreeDepth)
	deps := SummarizeDependencies(files)

	opts.Logger.Info("snapshot captured", zap.String("root", abs), zap.Int("files", len(files)))
	return domain.NewSnapshot(abs, files, tree, deps), nil
}

func walk(ctx context.Context, root string, f *filter.Filter) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if f.ExcludeDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project directory: %w", err)
	}
	return out, nil
}

func readFile(root, rel string, maxSize int64) (domain.FileEntry, bool, error) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	if err != nil {
		return domain.FileEntry{}, false, err
	}
	if !info.Mode().IsRegular() || info.Size() > maxSize {
		return domain.FileEntry{}, false, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return domain.FileEntry{}, false, err
	}
	if isBinary(data) {
		return domain.FileEntry{}, false, nil
	}
	return domain.FileEntry{Path: rel, Content: string(data), Size: info.Size()}, true, nil
}

// isBinary treats content with NUL bytes or invalid UTF-8 in the first 8KB
// as binary.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size == 1 {
			// A multi-byte rune cut at the 8KB boundary is not binary.
			return len(head) > utf8.UTFMax
		}
		head = head[size:]
	}
	return false
}

package store

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gitignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v3"
)

const (
	// optionsFile is the per-tree configuration file, read from the
	// store root.
	optionsFile = ".notesync.yml"

	// ignoreFile holds additional ignore patterns in gitignore syntax,
	// one per line.
	ignoreFile = ".syncignore"
)

// defaultIgnoreLines always apply. Dotfiles cover .git and editor
// state; the sibling patterns keep materialized conflict copies out of
// sync until they are renamed. The parens are escaped so the gitignore
// compiler treats them as literals.
var defaultIgnoreLines = []string{
	".*",
	`* \(remote*\).*`,
	`* \(local*\).*`,
}

// Options is the per-tree configuration read from .notesync.yml.
type Options struct {
	// Extensions tracked for sync. Defaults to .md only.
	Extensions []string `yaml:"extensions"`

	// Ignore patterns in gitignore syntax, merged with .syncignore.
	Ignore []string `yaml:"ignore"`
}

// Rules is the compiled tracking filter: which paths count as documents
// under sync.
type Rules struct {
	extensions map[string]struct{}
	ignore     *gitignore.GitIgnore
}

// loadRules reads the options and ignore files from the store root and
// compiles the tracking filter. Missing files fall back to defaults.
func loadRules(fsys billy.Filesystem) (*Rules, error) {
	var opts Options

	data, err := util.ReadFile(fsys, optionsFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", optionsFile, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading %s: %w", optionsFile, err)
	}

	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".md"}
	}

	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, opts.Ignore...)

	data, err = util.ReadFile(fsys, ignoreFile)
	switch {
	case err == nil:
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			lines = append(lines, line)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading %s: %w", ignoreFile, err)
	}

	extensions := make(map[string]struct{}, len(opts.Extensions))

	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		extensions[ext] = struct{}{}
	}

	return &Rules{
		extensions: extensions,
		ignore:     gitignore.CompileIgnoreLines(lines...),
	}, nil
}

// Tracked reports whether a normalized relative path is a document
// under sync.
func (r *Rules) Tracked(relPath string) bool {
	if relPath == "" {
		return false
	}

	ext := strings.ToLower(path.Ext(relPath))
	if _, ok := r.extensions[ext]; !ok {
		return false
	}

	return !r.ignore.MatchesPath(relPath)
}

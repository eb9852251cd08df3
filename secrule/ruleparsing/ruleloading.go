package ruleparsing

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sr "secwaf/secrule"
)

type fileRuleLoader struct {
	parser sr.RuleParser
	fs     RuleLoaderFileSystem
	paths  []string
}

// NewFileRuleLoader loads and parses SecRule files from disk, in the given order.
// Include statements and phrase files are resolved relative to the file that names them.
func NewFileRuleLoader(parser sr.RuleParser, fs RuleLoaderFileSystem, paths ...string) sr.RuleLoader {
	return &fileRuleLoader{
		parser: parser,
		fs:     fs,
		paths:  paths,
	}
}

// Rules loads and parses the rule files given in the constructor.
func (l *fileRuleLoader) Rules() (doc *sr.RuleDocument, err error) {
	all := &sr.RuleDocument{}
	for _, p := range l.paths {
		var d *sr.RuleDocument
		if d, err = l.load(p, nil); err != nil {
			return
		}
		all.Append(d)
	}

	doc = all
	return
}

// load parses a single rule file. includedFrom is the chain of files whose include statements led here.
func (l *fileRuleLoader) load(path string, includedFrom []string) (doc *sr.RuleDocument, err error) {
	path, err = l.canonical(path)
	if err != nil {
		return
	}

	if slices.Contains(includedFrom, path) {
		err = fmt.Errorf("cyclic include of %s via %s", path, strings.Join(includedFrom, " -> "))
		return
	}
	// Full slice expression, so sibling includes never share a backing array.
	chain := append(includedFrom[:len(includedFrom):len(includedFrom)], path)

	bb, err := l.fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read rule file %s: %w", path, err)
		return
	}

	dir := filepath.Dir(path)
	phrases := func(name string) ([]string, error) {
		return l.phrases(relativeTo(dir, name))
	}
	include := func(name string) (*sr.RuleDocument, error) {
		return l.load(relativeTo(dir, name), chain)
	}

	doc, err = l.parser.Parse(string(bb), phrases, include)
	if err != nil {
		doc = nil
		err = fmt.Errorf("%s: %w", path, err)
	}
	return
}

// canonical makes a path absolute and resolves symlinks, so that the same file always has the same name in include chains.
func (l *fileRuleLoader) canonical(path string) (string, error) {
	abs, err := l.fs.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of %s: %w", path, err)
	}

	resolved, err := l.fs.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks of %s: %w", abs, err)
	}

	return resolved, nil
}

// phrases reads a phrase file for @pmFromFile. There is one phrase per line, and lines starting with # are comments.
func (l *fileRuleLoader) phrases(path string) (phrases []string, err error) {
	bb, err := l.fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to load phrase file %s: %w", path, err)
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(bb))
	for sc.Scan() {
		p := strings.TrimSpace(sc.Text())
		if p == "" || p[0] == '#' {
			continue
		}
		phrases = append(phrases, p)
	}
	if err = sc.Err(); err != nil {
		err = fmt.Errorf("failed to load phrase file %s: %w", path, err)
	}
	return
}

func relativeTo(dir string, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// RuleLoaderFileSystem is the file system functions the rule loader needs. Needed for mocking.
type RuleLoaderFileSystem interface {
	ReadFile(filename string) ([]byte, error)
	Abs(path string) (string, error)
	EvalSymlinks(path string) (string, error)
}

// NewRuleLoaderFileSystem creates a RuleLoaderFileSystem backed by the OS.
func NewRuleLoaderFileSystem() RuleLoaderFileSystem {
	return osFileSystem{}
}

type osFileSystem struct{}

func (osFileSystem) ReadFile(filename string) ([]byte, error) { return os.ReadFile(filename) }
func (osFileSystem) Abs(path string) (string, error)          { return filepath.Abs(path) }
func (osFileSystem) EvalSymlinks(path string) (string, error) { return filepath.EvalSymlinks(path) }

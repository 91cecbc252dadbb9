package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	maxGlobMatches = 1000
	maxGrepMatches = 500
)

// GlobTool finds workspace files matching a doublestar glob pattern
// (supports `**` recursive segments), sorted by modification time.
type GlobTool struct {
	resolver Resolver
	root     string
}

func NewGlobTool(workspace string) *GlobTool {
	return &GlobTool{resolver: Resolver{Root: workspace}, root: workspace}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files in the workspace matching a glob pattern." }
func (t *GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"pattern": {"type": "string", "minLength": 1}},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}

	type match struct {
		path    string
		modTime int64
	}
	var matches []match

	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(rootAbs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		ok, matchErr := doublestar.Match(args.Pattern, rel)
		if matchErr != nil || !ok {
			return nil
		}
		info, infoErr := d.Info()
		var mtime int64
		if infoErr == nil {
			mtime = info.ModTime().UnixNano()
		}
		matches = append(matches, match{path: rel, modTime: mtime})
		return nil
	})
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })
	truncated := false
	if len(matches) > maxGlobMatches {
		matches = matches[:maxGlobMatches]
		truncated = true
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}

	return Result{
		Success:  true,
		Output:   strings.Join(paths, "\n"),
		Metadata: map[string]any{"count": len(paths), "truncated": truncated},
	}, nil
}

// GrepTool searches file contents under the workspace for a regular
// expression, returning matching lines with their file and line number.
type GrepTool struct {
	root string
}

func NewGrepTool(workspace string) *GrepTool {
	return &GrepTool{root: workspace}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents in the workspace for a regular expression." }
func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "minLength": 1},
			"glob": {"type": "string"}
		},
		"required": ["pattern"]
	}`)
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(_ context.Context, rawArgs json.RawMessage) (Result, error) {
	var args struct {
		Pattern string `json:"pattern"`
		Glob    string `json:"glob"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errorResult(ErrCodeInvalidArgs, err.Error(), nil), nil
	}

	re, err := regexp.Compile(args.Pattern)
	if err != nil {
		return errorResult(ErrCodeInvalidArgs, fmt.Sprintf("invalid pattern: %v", err), nil), nil
	}

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return errorResult(ErrCodeExecutionFailed, err.Error(), nil), nil
	}

	var matches []grepMatch
	truncated := false

	walkErr := filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || truncated {
			return nil
		}
		rel, relErr := filepath.Rel(rootAbs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if args.Glob != "" {
			ok, matchErr := doublestar.Match(args.Glob, rel)
			if matchErr != nil || !ok {
				return nil
			}
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, grepMatch{Path: rel, Line: lineNo, Text: line})
				if len(matches) >= maxGrepMatches {
					truncated = true
					return nil
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return errorResult(ErrCodeExecutionFailed, walkErr.Error(), nil), nil
	}

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d:%s\n", m.Path, m.Line, m.Text)
	}

	return Result{
		Success: true,
		Output:  b.String(),
		Metadata: map[string]any{
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

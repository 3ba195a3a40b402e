// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery finds the source files to analyze.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// Default extensions, without the leading dot.
var (
	// FunctionExtensions are scanned by the function and overlap analyzers.
	FunctionExtensions = []string{"js", "ts", "jsx", "tsx", "mjs", "mts", "cjs", "cts"}

	// TypeExtensions are scanned by the type analyzer.
	TypeExtensions = []string{"ts", "tsx", "mts", "cts"}
)

// ErrNoPaths is returned when Discover is called without paths.
var ErrNoPaths = errors.New("no paths given")

// alwaysSkipped are directory names never descended into.
var alwaysSkipped = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Options controls discovery.
type Options struct {
	// Extensions to keep, with or without the leading dot.
	Extensions []string

	// Exclude holds doublestar globs. A pattern matches the walked path,
	// the path relative to its root, or the base name.
	Exclude []string

	// RespectGitignore honors .gitignore files found while walking.
	RespectGitignore bool

	// IncludeHidden walks dot files and directories.
	IncludeHidden bool

	// MaxFileSize skips larger files. Zero disables the check.
	MaxFileSize int64
}

// Skipped is a file that matched but will not be analyzed.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of a discovery run.
type Result struct {
	// Files are the discovered paths, sorted, one per canonical file.
	Files []string

	// Missing lists arguments that do not exist.
	Missing []string

	// Skipped lists files rejected after matching, e.g. too large.
	Skipped []Skipped

	// InvalidPatterns lists exclude globs that failed to compile.
	InvalidPatterns []string
}

// Discover walks paths and returns the matching source files.
//
// # Description
//
// Each argument may be a file or a directory. A file argument is kept
// when its extension matches, regardless of excludes and ignore rules.
// Directories are walked without following symlinks; .git and
// node_modules are never entered, hidden entries are skipped unless
// IncludeHidden is set, and .gitignore files are honored when
// RespectGitignore is set. A file reachable from several arguments is
// reported once, under the first path it was reached by.
//
// # Inputs
//
//   - ctx: Checked between directory entries.
//   - paths: Files or directories.
//   - opts: Filters.
//
// # Outputs
//
//   - *Result: Files plus non-fatal problems.
//   - error: ErrNoPaths, a context error, or a walk failure of a root.
func Discover(ctx context.Context, paths []string, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	d := &discoverer{
		opts:    opts,
		exts:    normalizeExtensions(opts.Extensions),
		visited: make(map[string]bool),
		res:     &Result{},
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			slog.Warn("invalid glob pattern", slog.String("pattern", p))
			d.res.InvalidPatterns = append(d.res.InvalidPatterns, p)
			continue
		}
		d.exclude = append(d.exclude, filepath.ToSlash(p))
	}

	for _, root := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(root)
		if err != nil {
			slog.Warn("path not found", slog.String("path", root))
			d.res.Missing = append(d.res.Missing, root)
			continue
		}
		if !info.IsDir() {
			if d.matchesExtension(root) {
				d.add(root, info.Size())
			}
			continue
		}
		if err := d.walk(ctx, root); err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(d.res.Files)
	return d.res, nil
}

type discoverer struct {
	opts    Options
	exts    map[string]bool
	exclude []string
	visited map[string]bool
	res     *Result
}

// gitignoreScope is a compiled .gitignore and the directory it governs.
type gitignoreScope struct {
	dir     string
	matcher *ignore.GitIgnore
}

func (d *discoverer) walk(ctx context.Context, root string) error {
	var scopes []gitignoreScope

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			slog.Debug("skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		isRoot := path == root
		name := entry.Name()

		if entry.IsDir() {
			if !isRoot {
				if alwaysSkipped[name] || (!d.opts.IncludeHidden && isHidden(name)) {
					return filepath.SkipDir
				}
				if d.excluded(root, path) || d.ignored(scopes, path, true) {
					return filepath.SkipDir
				}
			}
			if d.opts.RespectGitignore {
				scopes = popScopes(scopes, path)
				if m := loadGitignore(path); m != nil {
					scopes = append(scopes, gitignoreScope{dir: path, matcher: m})
				}
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}
		if !d.opts.IncludeHidden && isHidden(name) {
			return nil
		}
		if !d.matchesExtension(path) || d.excluded(root, path) || d.ignored(scopes, path, false) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		d.add(path, info.Size())
		return nil
	})
}

func (d *discoverer) add(path string, size int64) {
	key := canonical(path)
	if d.visited[key] {
		return
	}
	d.visited[key] = true

	if d.opts.MaxFileSize > 0 && size > d.opts.MaxFileSize {
		d.res.Skipped = append(d.res.Skipped, Skipped{
			Path: path,
			Err:  fmt.Errorf("%w: size %d exceeds limit %d", ast.ErrFileTooLarge, size, d.opts.MaxFileSize),
		})
		return
	}
	d.res.Files = append(d.res.Files, path)
}

func (d *discoverer) matchesExtension(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return ext != "" && d.exts[ext]
}

func (d *discoverer) excluded(root, path string) bool {
	if len(d.exclude) == 0 {
		return false
	}
	candidates := []string{filepath.ToSlash(path), filepath.Base(path)}
	if rel, err := filepath.Rel(root, path); err == nil {
		candidates = append(candidates, filepath.ToSlash(rel))
	}
	for _, pattern := range d.exclude {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(pattern, c); ok {
				return true
			}
		}
	}
	return false
}

// ignored checks path against every enclosing .gitignore, outermost
// first. Negated patterns only apply within their own file.
func (d *discoverer) ignored(scopes []gitignoreScope, path string, isDir bool) bool {
	for _, s := range scopes {
		rel, err := filepath.Rel(s.dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if s.matcher.MatchesPath(rel) {
			return true
		}
		if isDir && s.matcher.MatchesPath(rel+"/") {
			return true
		}
	}
	return false
}

// popScopes drops scopes that do not contain dir. WalkDir visits in
// lexical order, so leaving a directory means leaving its scope.
func popScopes(scopes []gitignoreScope, dir string) []gitignoreScope {
	for len(scopes) > 0 {
		top := scopes[len(scopes)-1].dir
		if dir == top || strings.HasPrefix(dir, top+string(filepath.Separator)) {
			break
		}
		scopes = scopes[:len(scopes)-1]
	}
	return scopes
}

func loadGitignore(dir string) *ignore.GitIgnore {
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		slog.Warn("ignoring unreadable .gitignore", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	return m
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func normalizeExtensions(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out[e] = true
		}
	}
	return out
}

// HasExtension reports whether path ends in one of exts.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			return true
		}
	}
	return false
}

// Union merges extension lists, keeping first-seen order.
func Union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, e := range l {
			e = strings.ToLower(strings.TrimPrefix(e, "."))
			if e != "" && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

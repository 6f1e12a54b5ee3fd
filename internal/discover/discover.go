// Package discover walks the TEST_FILES_OR_DIRS arguments, handing every
// file matching the resolved backend's TestFilePatterns to Backend.Parse.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/necessist/necessist/internal/backend"
	"github.com/necessist/necessist/internal/ignore"
	"github.com/necessist/necessist/internal/model"
	"github.com/necessist/necessist/internal/warning"
)

// Result aggregates every test and candidate found across all discovered
// files, plus the parsed SourceFiles keyed by path (the dry-run
// coordinator and scheduler both need to reference them later).
type Result struct {
	Tests      []model.Test
	Candidates []model.Candidate
	Files      map[model.Path]*model.SourceFile
}

// Run resolves roots (files or directories; an empty roots list means the
// current directory, recursively) against be's TestFilePatterns and
// parses every match. A file that fails to parse is reported as a
// warning.ParseError and otherwise skipped, per spec §7.
func Run(roots []string, be backend.Backend, rules ignore.Rules, collector *warning.Collector) (Result, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}

	paths, err := resolvePaths(roots, be.TestFilePatterns())
	if err != nil {
		return Result{}, err
	}

	result := Result{Files: make(map[model.Path]*model.SourceFile, len(paths))}

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			if repErr := collector.Report(warning.New(warning.ParseError, "read %s: %v", path, err)); repErr != nil {
				return Result{}, repErr
			}

			continue
		}

		file := model.NewSourceFile(model.Path(path), content)

		parsed, err := be.Parse(file, rules)
		if err != nil {
			if repErr := collector.Report(warning.New(warning.ParseError, "parse %s: %v", path, err)); repErr != nil {
				return Result{}, repErr
			}

			continue
		}

		result.Files[file.Path] = file

		for _, test := range parsed.Tests {
			if rules.IgnoresTest(test.ID) {
				continue
			}

			result.Tests = append(result.Tests, test)
		}

		result.Candidates = append(result.Candidates, parsed.Candidates...)
	}

	return result, nil
}

// resolvePaths expands roots into a sorted, de-duplicated list of files
// matching any of patterns. A root that names a file directly is included
// regardless of pattern; a directory root is walked recursively.
func resolvePaths(roots []string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			seen[root] = struct{}{}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == ".necessist" || d.Name() == "node_modules" {
					return filepath.SkipDir
				}

				return nil
			}

			if matches(path, patterns) {
				seen[path] = struct{}{}
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}

	sort.Strings(out)

	return out, nil
}

func matches(path string, patterns []string) bool {
	for _, suffix := range patterns {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}

	return false
}

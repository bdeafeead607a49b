package daemonsock

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Fallback scan limits. A text scan replaces an indexed search on the
// interactive path, so it is capped rather than exhaustive.
const (
	maxFallbackResults  = 50
	maxFallbackFileSize = 1 << 20 // skip files over 1 MiB
	maxFallbackLineLen  = 500
)

// skipDirs are trees a text scan never descends into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
}

// textSearch is the degraded path when the daemon cannot answer: a
// case-insensitive substring scan over the project tree. It returns
// whatever it found when the budget or the context runs out.
func textSearch(ctx context.Context, query, root string) ([]Result, error) {
	if query == "" || root == "" {
		return nil, nil
	}
	needle := strings.ToLower(query)

	var results []Result
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFallbackFileSize {
			return nil
		}
		hits := scanFile(path, needle, maxFallbackResults-len(results))
		results = append(results, hits...)
		if len(results) >= maxFallbackResults {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func scanFile(path, needle string, budget int) []Result {
	if budget <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []Result
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxFallbackFileSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		if len(line) > maxFallbackLineLen {
			line = line[:maxFallbackLineLen]
		}
		hits = append(hits, Result{File: path, Line: lineNo, Snippet: strings.TrimSpace(line)})
		if len(hits) >= budget {
			break
		}
	}
	return hits
}

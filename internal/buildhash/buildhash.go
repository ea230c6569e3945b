// Package buildhash implements the .hash staleness-detection format: a
// per-platform SHA-256 over a plug-in's native source files, used to
// decide whether a plug-in's shared object needs rebuilding before it is
// loaded.
package buildhash

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// sourceExt is the set of file extensions that contribute to a plug-in's
// build hash. The distilled format only names .c/.cpp; header files are
// included too since a header-only change is a real staleness signal.
var sourceExt = map[string]bool{
	".c":   true,
	".cpp": true,
	".h":   true,
	".hpp": true,
}

// SourceFiles returns every hash-relevant source file under dir, in
// directory-walk order.
func SourceFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if sourceExt[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("buildhash: walking %s: %w", dir, err)
	}
	return files, nil
}

// ComputeHash hashes the concatenated bytes of every source file under dir,
// in directory-walk order, and returns the hex-encoded SHA-256 digest.
func ComputeHash(dir string) (string, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("buildhash: reading %s: %w", f, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Line is one "<platform_tag>:<hex_sha256>" entry in a .hash file.
type Line struct {
	Platform string
	Hash     string
}

// ReadLines parses a .hash file. A missing file yields a nil slice and no
// error — "needs rebuild" is the caller's interpretation of an absent
// platform line, not a read failure. Malformed lines are skipped.
func ReadLines(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("buildhash: opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		platform, hash, ok := strings.Cut(text, ":")
		if !ok || platform == "" || hash == "" {
			continue
		}
		lines = append(lines, Line{Platform: platform, Hash: hash})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("buildhash: reading %s: %w", path, err)
	}
	return lines, nil
}

// WriteLines writes lines to path, one "<platform_tag>:<hex_sha256>" per
// line, in the given order.
func WriteLines(path string, lines []Line) error {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s:%s\n", l.Platform, l.Hash)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("buildhash: writing %s: %w", path, err)
	}
	return nil
}

// SaveHash replaces platformTag's first line in path with hexHash in place,
// drops any later duplicate lines for platformTag, and preserves every
// other platform's line, or appends a new line if platformTag wasn't
// present.
func SaveHash(path, platformTag, hexHash string) error {
	lines, err := ReadLines(path)
	if err != nil {
		return err
	}

	replaced := false
	kept := lines[:0]
	for _, l := range lines {
		if l.Platform == platformTag {
			if replaced {
				continue
			}
			l.Hash = hexHash
			replaced = true
		}
		kept = append(kept, l)
	}
	lines = kept
	if !replaced {
		lines = append(lines, Line{Platform: platformTag, Hash: hexHash})
	}
	return WriteLines(path, lines)
}

// VerifyHash reports whether platformTag's stored hash in hashPath matches
// dir's current source hash. A missing file or missing platform line is
// reported as not up to date, not as an error.
func VerifyHash(hashPath, platformTag, dir string) (upToDate bool, err error) {
	lines, err := ReadLines(hashPath)
	if err != nil {
		return false, err
	}

	var stored string
	found := false
	for _, l := range lines {
		if l.Platform == platformTag {
			stored = l.Hash
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	current, err := ComputeHash(dir)
	if err != nil {
		return false, err
	}
	return stored == current, nil
}

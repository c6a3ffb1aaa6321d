package audio

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

const maxFilenameLen = 100

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Entry is one file in an archive
type Entry struct {
	Name string
	Data []byte
}

// WriteArchive writes entries as a zip archive, in order
func WriteArchive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	now := time.Now()

	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// SafeFilename maps a label to a name that is safe on every filesystem
func SafeFilename(label string) string {
	name := unsafeFilenameChars.ReplaceAllString(label, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxFilenameLen {
		name = strings.TrimRight(name[:maxFilenameLen], "._")
	}
	if name == "" {
		return "item"
	}
	return name
}

// UniqueNames suffixes repeated names with _2, _3, ... keeping the first as is
func UniqueNames(names []string) []string {
	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[n] = false
	}

	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if !used[n] {
			used[n] = true
			out[i] = n
			continue
		}
		for {
			seen[n]++
			candidate := fmt.Sprintf("%s_%d", n, seen[n]+1)
			if _, taken := used[candidate]; !taken {
				used[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

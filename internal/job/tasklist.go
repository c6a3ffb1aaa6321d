package job

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Row is one parsed task list line
type Row struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// rowPattern matches `label,content`. Either field may be double quoted,
// with "" standing for a literal quote inside quotes.
var rowPattern = regexp.MustCompile(`^\s*(?:"((?:[^"]|"")*)"|([^,"]*?))\s*,\s*(?:"((?:[^"]|"")*)"|([^"].*?|))\s*$`)

// ParseTaskList reads a CSV task list. The first line is a header.
// Blank lines, lines that do not match and rows with no content are skipped.
func ParseTaskList(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var rows []Row
	header := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if header {
			header = false
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		row, ok := parseRow(line)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task list: %w", err)
	}
	return rows, nil
}

func parseRow(line string) (Row, bool) {
	m := rowPattern.FindStringSubmatch(line)
	if m == nil {
		return Row{}, false
	}

	label := m[2]
	if m[1] != "" {
		label = unquote(m[1])
	}
	content := m[4]
	if m[3] != "" {
		content = unquote(m[3])
	}

	label = strings.TrimSpace(label)
	content = strings.TrimSpace(content)
	if content == "" {
		return Row{}, false
	}
	return Row{Label: label, Content: content}, true
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

package cypher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseScript splits a load script into statements. A statement ends
// at a line ending in ";"; the terminator is dropped. Comment lines
// outside statements are skipped.
func ParseScript(r io.Reader) ([]string, error) {
	var (
		out []string
		cur []string
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)
		if len(cur) == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "//")) {
			continue
		}
		if strings.HasSuffix(trimmed, ";") {
			cur = append(cur, strings.TrimSuffix(line, ";"))
			out = append(out, strings.TrimSpace(strings.Join(cur, "\n")))
			cur = cur[:0]
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	if rest := strings.TrimSpace(strings.Join(cur, "\n")); rest != "" {
		out = append(out, rest)
	}
	return out, nil
}

// ReadScriptFile parses the script at path.
func ReadScriptFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

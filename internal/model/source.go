package model

import "strings"

// SourceFile is a path plus its content, read once per scan.
type SourceFile struct {
	Path    string
	Content string
}

// Lines splits the content into lines. Line n of the file is Lines()[n-1].
// A trailing newline does not start a new line and a \r before \n is dropped,
// so empty content has zero lines.
func (f SourceFile) Lines() []string {
	if f.Content == "" {
		return nil
	}
	content := strings.TrimSuffix(f.Content, "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

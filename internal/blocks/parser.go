// Package blocks turns free-form assistant text into an ordered sequence of
// property cards and prose paragraphs.
//
// The classification is a best-effort heuristic tuned to the "Label: value"
// layout the assistant is prompted to produce; it is not a grammar.
package blocks

import (
	"regexp"
	"strings"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	fieldLine      = regexp.MustCompile(`^([A-Z][\w\s]+):\s*(.*)$`)
	digitsOnly     = regexp.MustCompile(`^\d+$`)
)

// Block is either a PropertyBlock or a ProseBlock.
type Block interface {
	isBlock()
}

// Field is one "Label: value" line of a property block. Value is kept raw;
// interpretation (lists, links) belongs to the renderer.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PropertyBlock is a paragraph that contained at least one field line.
type PropertyBlock struct {
	Title  string  `json:"title,omitempty"`
	Fields []Field `json:"fields"`
}

// ProseBlock is a paragraph without any field lines.
type ProseBlock struct {
	Lines []string `json:"lines"`
}

func (PropertyBlock) isBlock() {}
func (ProseBlock) isBlock()    {}

// Text joins the prose lines with single spaces.
func (p ProseBlock) Text() string {
	return strings.Join(p.Lines, " ")
}

// Field returns the value stored under label and whether it exists.
func (p PropertyBlock) Field(label string) (string, bool) {
	for _, f := range p.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Parse splits text into paragraphs on one or more fully blank lines and
// classifies each non-empty paragraph into exactly one block.
//
// Lines of a paragraph that contains fields but are not fields themselves are
// dropped, except for an eligible title on the first line.
func Parse(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []Block
	for _, paragraph := range paragraphBreak.Split(text, -1) {
		lines := splitLines(paragraph)
		if len(lines) == 0 {
			continue
		}
		out = append(out, classify(lines))
	}
	return out
}

func classify(lines []string) Block {
	title := ""
	rest := lines
	if isTitle(lines[0]) {
		title = lines[0]
		rest = lines[1:]
	}

	var fields []Field
	index := make(map[string]int)
	for _, line := range rest {
		m := fieldLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		if i, ok := index[label]; ok {
			fields[i].Value = value
			continue
		}
		index[label] = len(fields)
		fields = append(fields, Field{Label: label, Value: value})
	}

	if len(fields) > 0 {
		return PropertyBlock{Title: title, Fields: fields}
	}
	return ProseBlock{Lines: lines}
}

func splitLines(paragraph string) []string {
	var lines []string
	for _, line := range strings.Split(paragraph, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// isTitle reports whether the first line of a paragraph reads as a heading.
func isTitle(line string) bool {
	return line != "" && !strings.Contains(line, ":") && !digitsOnly.MatchString(line)
}

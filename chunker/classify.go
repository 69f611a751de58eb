package chunker

import (
	"regexp"
	"strings"
)

// headingPatterns recognize common heading styles in OCR'd markdown:
// hierarchical numbering, all-caps lines, markdown ATX headers, and the
// appendix/article conventions common in long structured documents.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(\d+\.)+(\d+)?\s+\S`),
	regexp.MustCompile(`^[A-Z][A-Z\s]{4,}$`),
	regexp.MustCompile(`^#{1,6}\s+\S`),
	regexp.MustCompile(`(?i)^(appendix|annex|schedule|exhibit)\s+[A-Z0-9]`),
	regexp.MustCompile(`(?i)^article\s+[IVXLCDM\d]+`),
}

// IsHeadingLine reports whether a line of text looks like a heading.
func IsHeadingLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, re := range headingPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

var numberingPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.\s`)

// HeadingLevel returns the nesting depth implied by a line's hierarchical
// numbering ("1." is level 1, "1.2." is level 2), or the markdown "#" count,
// or 1 for an unnumbered heading.
func HeadingLevel(line string) int {
	line = strings.TrimSpace(line)
	if m := numberingPattern.FindStringSubmatch(line); len(m) >= 2 {
		return strings.Count(m[1], ".") + 1
	}
	if strings.HasPrefix(line, "#") {
		n := 0
		for n < len(line) && line[n] == '#' {
			n++
		}
		return n
	}
	return 1
}

func firstLineOf(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

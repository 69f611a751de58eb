package chunker

import (
	"regexp"
	"strings"
)

var tableCellSplit = regexp.MustCompile(`\|`)
var htmlRow = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
var htmlCell = regexp.MustCompile(`(?is)<t[hd][^>]*>(.*?)</t[hd]>`)
var captionPattern = regexp.MustCompile(`(?i)^(Table|Figure)\s+\d+[.:]`)

// ExtractTableStructures walks tree for Table/TableGroup blocks and extracts
// a TableStructure for each, using the preceding sibling's text as a caption
// candidate and checking cross-page continuation against tables already
// extracted.
func ExtractTableStructures(tree BlockTree) []TableStructure {
	var out []TableStructure
	var prevText string

	var walk func(blocks []Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			if b.Type == BlockTable || b.Type == BlockTableGroup {
				ts := extractOneTable(b, prevText)
				markContinuation(&ts, out)
				out = append(out, ts)
			} else if strings.TrimSpace(b.Text) != "" {
				prevText = b.Text
			}
			if len(b.Children) > 0 {
				walk(b.Children)
			}
		}
	}
	walk(tree)
	return out
}

func extractOneTable(b Block, prevText string) TableStructure {
	columns, rows := parseTableRows(b)

	ts := TableStructure{PageNumber: b.PageNumber}
	if len(columns) > 0 {
		ts.Columns = columns
		ts.ColumnCount = len(columns)
	}
	if len(rows) > 0 {
		ts.RowCount = len(rows)
		ts.FirstDataRow = rows[0]
	}
	if cap := strings.TrimSpace(prevText); captionPattern.MatchString(cap) {
		line := firstLineOf(cap)
		ts.Caption = &line
	}
	ts.Summary = summarize(b.Text, ts.Columns, ts.RowCount)
	return ts
}

// parseTableRows extracts header columns and data rows via a three-tier
// fallback: structural row/cell children (if the block tree carried them as
// nested Table blocks), then HTML th/td markup, then markdown pipe rows.
func parseTableRows(b Block) (columns []string, rows [][]string) {
	if len(b.Children) > 0 {
		var childRows [][]string
		for _, child := range b.Children {
			if child.Type == BlockTable {
				cells := splitPipeRow(child.Text)
				if len(cells) > 0 {
					childRows = append(childRows, cells)
				}
			}
		}
		if len(childRows) > 0 {
			return childRows[0], childRows[1:]
		}
	}

	if htmlRow.MatchString(b.Text) {
		var htmlRows [][]string
		for _, rowMatch := range htmlRow.FindAllStringSubmatch(b.Text, -1) {
			var cells []string
			for _, cellMatch := range htmlCell.FindAllStringSubmatch(rowMatch[1], -1) {
				cells = append(cells, strings.TrimSpace(stripHTMLTags(cellMatch[1])))
			}
			if len(cells) > 0 {
				htmlRows = append(htmlRows, cells)
			}
		}
		if len(htmlRows) > 0 {
			return htmlRows[0], htmlRows[1:]
		}
	}

	var pipeRows [][]string
	for _, line := range strings.Split(b.Text, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		if isMarkdownSeparatorRow(line) {
			continue
		}
		cells := splitPipeRow(line)
		if len(cells) > 0 {
			pipeRows = append(pipeRows, cells)
		}
	}
	if len(pipeRows) > 0 {
		return pipeRows[0], pipeRows[1:]
	}
	return nil, nil
}

var separatorCell = regexp.MustCompile(`^:?-+:?$`)

func isMarkdownSeparatorRow(line string) bool {
	cells := splitPipeRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCell.MatchString(strings.TrimSpace(c)) {
			return false
		}
	}
	return true
}

func splitPipeRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "|")
	if line == "" {
		return nil
	}
	parts := tableCellSplit.Split(line, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func summarize(text string, columns []string, rowCount int) string {
	var s string
	if len(columns) > 0 {
		s = strings.Join(columns, ", ") + " (" + itoa(rowCount) + " rows)"
	} else {
		s = strings.TrimSpace(firstLineOf(text))
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// markContinuation sets ts.ContinuesPrior when the immediately preceding
// extracted table is on an adjacent page (|page diff| <= 1) and has
// normalized headers with at least 80% Sorensen-Dice overlap.
func markContinuation(ts *TableStructure, prior []TableStructure) {
	if len(ts.Columns) == 0 || len(prior) == 0 {
		return
	}
	p := prior[len(prior)-1]
	if abs(p.PageNumber-ts.PageNumber) > 1 || len(p.Columns) == 0 {
		return
	}
	if sorensenDice(p.Columns, ts.Columns) >= 0.8 {
		ts.ContinuesPrior = true
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sorensenDice computes bigram-set Sorensen-Dice similarity over the
// normalized, space-joined column headers.
func sorensenDice(a, b []string) float64 {
	na := normalizeBoilerplate(strings.Join(a, " "))
	nb := normalizeBoilerplate(strings.Join(b, " "))
	if na == "" || nb == "" {
		return 0
	}
	bigramsA := bigramSet(na)
	bigramsB := bigramSet(nb)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		if na == nb {
			return 1
		}
		return 0
	}
	intersection := 0
	for bg := range bigramsA {
		if bigramsB[bg] {
			intersection++
		}
	}
	return 2 * float64(intersection) / float64(len(bigramsA)+len(bigramsB))
}

func bigramSet(s string) map[string]bool {
	set := map[string]bool{}
	for i := 0; i+1 < len(s); i++ {
		set[s[i:i+2]] = true
	}
	return set
}

package chunker

import (
	"strings"
)

// DetectRepeatedTexts walks tree counting normalized PageHeader/PageFooter
// text per page, and returns the distinct normalized texts that appear on
// more than half of the pages carrying a header or footer, with at least two
// occurrences in total.
func DetectRepeatedTexts(tree BlockTree) []string {
	pagesSeen := map[int]bool{}
	// normalized text -> set of pages it appeared on
	occurrences := map[string]map[int]bool{}
	counts := map[int]map[string]int{} // page -> normalized text -> count on that page

	var walk func(blocks []Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			if b.Type == BlockPageHeader || b.Type == BlockPageFooter {
				pagesSeen[b.PageNumber] = true
				norm := normalizeBoilerplate(b.Text)
				if norm != "" {
					if occurrences[norm] == nil {
						occurrences[norm] = map[int]bool{}
					}
					occurrences[norm][b.PageNumber] = true
					if counts[b.PageNumber] == nil {
						counts[b.PageNumber] = map[string]int{}
					}
					counts[b.PageNumber][norm]++
				}
			}
			if len(b.Children) > 0 {
				walk(b.Children)
			}
		}
	}
	walk(tree)

	totalPages := len(pagesSeen)
	if totalPages == 0 {
		return nil
	}

	var repeated []string
	for norm, pages := range occurrences {
		total := 0
		for page := range pages {
			total += counts[page][norm]
		}
		if total >= 2 && float64(len(pages)) > float64(totalPages)*0.5 {
			repeated = append(repeated, norm)
		}
	}
	return repeated
}

func normalizeBoilerplate(s string) string {
	return wsRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// MarkRepeatedBoilerplate flags chunks whose normalized text equals, or is
// contained within (length ratio at most 1.5x), one of the repeated texts.
func MarkRepeatedBoilerplate(chunks []Chunk, repeatedTexts []string) {
	if len(repeatedTexts) == 0 {
		return
	}
	for i := range chunks {
		norm := normalizeBoilerplate(chunks[i].Text)
		if norm == "" {
			continue
		}
		for _, rep := range repeatedTexts {
			if norm == rep {
				chunks[i].IsRepeatedBoilerplate = true
				break
			}
			shorter, longer := norm, rep
			if len(longer) < len(shorter) {
				shorter, longer = longer, shorter
			}
			if shorter == "" {
				continue
			}
			if strings.Contains(longer, shorter) && float64(len(longer)) <= float64(len(shorter))*1.5 {
				chunks[i].IsRepeatedBoilerplate = true
				break
			}
		}
	}
}

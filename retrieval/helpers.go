package retrieval

import (
	"regexp"
	"strings"
)

// Mode selects how sanitizeFTSQuery joins multiple query tokens.
type Mode int

const (
	// ModeAND requires every token to match. Default for multi-word queries.
	ModeAND Mode = iota
	// ModeOR matches any token.
	ModeOR
)

var nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ftsOperators are FTS5 keywords that would otherwise let a user query act
// as a boolean expression (e.g. negating a match with "NOT"). Dropped
// rather than escaped so a query like "NOT applicable" still matches a
// chunk containing the literal phrase.
var ftsOperators = map[string]bool{
	"and": true, "or": true, "not": true, "near": true,
}

// tokenize splits s into lowercase alphanumeric tokens, dropping FTS5
// operator keywords.
func tokenize(s string) []string {
	var tokens []string
	for _, tok := range nonAlphanumeric.Split(s, -1) {
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)
		if ftsOperators[lower] {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}

// sanitizeFTSQuery tokenizes a raw user query into FTS5-safe terms and
// rejoins them with AND or OR. Callers that already hold a pre-built FTS5
// query string bypass this entirely (SearchOptions.PreSanitized).
func sanitizeFTSQuery(query string, mode Mode) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	joiner := " AND "
	if mode == ModeOR {
		joiner = " OR "
	}
	return strings.Join(tokens, joiner)
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"this": true, "that": true, "these": true, "those": true,
	"what": true, "which": true, "who": true, "whom": true,
	"where": true, "when": true, "how": true, "why": true,
	"no": true, "nor": true, "if": true, "then": true, "than": true,
	"so": true, "as": true, "about": true, "into": true, "between": true,
}

func isStopWord(w string) bool {
	return stopWords[w]
}

// identifierPatterns match structured identifiers (part numbers, standards,
// IPs, model numbers, revision codes, voltage specs) whose presence in a
// query should shift weight toward exact-match BM25 over semantic vector
// similarity.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:PN[:\s]*|P/N[:\s]*)?[A-Z]{1,3}[-]?\d{3,6}`),
	regexp.MustCompile(`(?i)(?:ISO|EN|IEC|MIL-STD|ASTM|IEEE|NIST|AS|BS)\s*[-]?\s*\d[\w.-]*`),
	regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
	regexp.MustCompile(`\b[A-Z]{2,4}-[A-Z]{1,4}\b`),
	regexp.MustCompile(`(?i)Rev\.?\s*[A-Z0-9]{1,5}`),
	regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*[Vv](?:AC|DC|ac|dc)\b`),
}

// detectIdentifiers reports whether query contains at least one structured
// identifier.
func detectIdentifiers(query string) bool {
	for _, p := range identifierPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

// placeholders returns n comma-separated "?" placeholders for an IN clause.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

// escapeLike escapes backslash, %, and _ in a user-supplied LIKE fragment.
// Callers pair the result with ESCAPE '\' in the query and add their own
// leading/trailing % for a contains-match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func intersectSorted(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	var out []string
	for _, id := range a {
		if inB[id] {
			out = append(out, id)
		}
	}
	return out
}

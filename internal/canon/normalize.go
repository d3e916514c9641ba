package canon

import (
	"strings"
)

// namePrefixes are stripped during normalization so "RC Hades" and "Hades"
// resolve to the same entity. Longer variants come first.
var namePrefixes = []string{
	"r.c. ", "rc ", "k.s.k. ", "k.s. k. ", "ksk ", "f.c. ", "fc ", "f.k. ", "fk ",
	"c.f. ", "cf ", "s.c. ", "sc ", "s.s.c. ", "ssc ", "a.c. ", "ac ", "a.s. ", "as ",
	"u.d. ", "ud ", "c.d. ", "cd ", "n.k. ", "nk ", "b.c. ", "bc ", "bk ",
}

// nameSuffixes are stripped from the tail: "Liverpool FC" -> "liverpool".
var nameSuffixes = []string{
	" fc", " f.c.", " afc", " cf", " c.f.", " sc", " s.c.", " fk", " f.k.",
	" bk", " if", " sk", " ii",
}

// abbreviations is a fixed expansion table applied token by token.
var abbreviations = map[string]string{
	"man":    "manchester",
	"utd":    "united",
	"intl":   "international",
	"atl":    "atletico",
	"dep":    "deportivo",
	"ath":    "athletic",
	"wolves": "wolverhampton",
	"spurs":  "tottenham",
	"psg":    "paris saint germain",
	"util":   "utility",
}

// punctReplacer turns separator punctuation into spaces before tokenizing.
var punctReplacer = strings.NewReplacer(
	".", " ", ",", " ", "'", " ", "-", " ", "–", " ", "—", " ",
	"(", " ", ")", " ", "/", " ", "\\", " ", "|", " ",
)

// Normalize applies the deterministic second-stage transformation of the
// resolve pipeline: case fold, punctuation strip, prefix/suffix strip,
// token-wise abbreviation expansion, whitespace collapse.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	// Prefix/suffix tables contain dotted forms, so they apply before
	// punctuation is stripped.
	for _, p := range namePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	for _, suf := range nameSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
			break
		}
	}

	s = punctReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if exp, ok := abbreviations[tok]; ok {
			tokens[i] = exp
		}
	}
	return strings.Join(tokens, " ")
}

package normalizer

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NameNormalizer canonicalizes free-text complex names for comparison.
// Two sources spelling the same complex differently ("정든한진 6차 아파트"
// vs "정든한진6차") should land on near-identical normalized forms.
type NameNormalizer struct {
	phasePattern     *regexp.Regexp // "6차" → "6"
	danjiPattern     *regexp.Regexp // "제3단지" / "3단지" → "3"
	qualifierPattern *regexp.Regexp
	spacePattern     *regexp.Regexp
	asciiPattern     *regexp.Regexp
}

// NewNameNormalizer builds a normalizer from the embedded qualifier
// list. All patterns are precompiled.
func NewNameNormalizer() *NameNormalizer {
	cfg := mustRules()

	// Latin qualifiers need word boundaries so "apt" doesn't eat into
	// "captain"; hangul qualifiers are unambiguous substrings.
	quals := make([]string, 0, len(cfg.NameQualifiers))
	for _, q := range cfg.NameQualifiers {
		if isASCII(q) {
			quals = append(quals, `\b`+regexp.QuoteMeta(q)+`\b`)
		} else {
			quals = append(quals, regexp.QuoteMeta(q))
		}
	}

	return &NameNormalizer{
		phasePattern:     regexp.MustCompile(`([0-9]+)\s*차`),
		danjiPattern:     regexp.MustCompile(`제?([0-9]+)\s*단지`),
		qualifierPattern: regexp.MustCompile(strings.Join(quals, "|")),
		spacePattern:     regexp.MustCompile(`\s+`),
		asciiPattern:     regexp.MustCompile(`[^a-z0-9 ]`),
	}
}

// Normalize canonicalizes a raw complex name. Idempotent; empty or
// whitespace-only input yields the empty string, never an error.
//
// Numbered 차/단지 suffixes keep their number and lose only the marker:
// "한진1차" and "한진2차" are different complexes and must stay distinct
// after normalization.
func (nn *NameNormalizer) Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Crawler text mixes full-width and half-width forms ("１０２동").
	s = width.Fold.String(s)
	s = norm.NFC.String(s)
	s = strings.ToLower(s)

	s = nn.danjiPattern.ReplaceAllString(s, "$1")
	s = nn.phasePattern.ReplaceAllString(s, "$1")
	s = nn.qualifierPattern.ReplaceAllString(s, " ")

	s = nn.spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// AsciiFold returns the ASCII fingerprint of a normalized name, used as
// a typo-insensitive secondary index key.
func (nn *NameNormalizer) AsciiFold(normalized string) string {
	s := unidecode.Unidecode(normalized)
	s = strings.ToLower(s)
	s = nn.asciiPattern.ReplaceAllString(s, " ")
	s = nn.spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Crawler price text uses 만원 as the minor unit with locale notation:
// "억" is 10^4 minor units and "천" is 10^3. "14억 5,000" therefore
// decomposes to 140000 + 5000 = 145000.

var (
	eokPattern   = regexp.MustCompile(`([0-9,\.]+)\s*억`)
	cheonPattern = regexp.MustCompile(`([0-9,\.]+)\s*천`)
	numPattern   = regexp.MustCompile(`[0-9][0-9,]*`)

	noInfoMarkers = []string{"정보없음", "정보 없음", "가격미정", "-"}
)

// ParsePrice decomposes a crawler price string into 만원. Unparseable
// input ("정보없음", empty, free text) yields nil, never zero: a missing
// price and a zero price are different facts.
func ParsePrice(raw string) *int64 {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return nil
	}
	for _, marker := range noInfoMarkers {
		if s == marker {
			return nil
		}
	}

	var total int64
	matched := false
	rest := s

	if m := eokPattern.FindStringSubmatch(rest); m != nil {
		// "1.5억" appears in listing blurbs; carry the fraction into
		// the minor unit.
		v, ok := parseEok(m[1])
		if !ok {
			return nil
		}
		total += v
		matched = true
		rest = strings.Replace(rest, m[0], "", 1)
	}

	if m := cheonPattern.FindStringSubmatch(rest); m != nil {
		v, ok := parseAmount(m[1])
		if !ok {
			return nil
		}
		total += v * 1000
		matched = true
		rest = strings.Replace(rest, m[0], "", 1)
	}

	// Trailing bare number after 억, or a plain numeric price.
	if m := numPattern.FindString(rest); m != "" {
		v, ok := parseAmount(m)
		if !ok {
			return nil
		}
		total += v
		matched = true
	}

	if !matched || total <= 0 {
		return nil
	}
	return &total
}

func parseEok(s string) (int64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(f*10000 + 0.5), true
}

func parseAmount(s string) (int64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

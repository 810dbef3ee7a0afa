package normalizer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/complex-registry/app/models"
)

// RegionExtractor parses the administrative hierarchy out of free-text
// addresses by ordered suffix matching. Extraction is best-effort and
// explicitly allowed to be wrong; downstream matching treats the result
// as a weak signal, never authoritative.
type RegionExtractor struct {
	provinceSuffixes    []string
	citySuffixes        []string
	subdistrictSuffixes []string

	// alias → official province name
	provinceAliases map[string]string
}

// NewRegionExtractor builds an extractor from the embedded suffix
// tables.
func NewRegionExtractor() *RegionExtractor {
	cfg := mustRules()

	aliases := make(map[string]string)
	for official, forms := range cfg.ProvinceAliases {
		for _, form := range forms {
			aliases[form] = official
		}
	}

	return &RegionExtractor{
		provinceSuffixes:    cfg.ProvinceSuffixes,
		citySuffixes:        cfg.CitySuffixes,
		subdistrictSuffixes: cfg.SubdistrictSuffixes,
		provinceAliases:     aliases,
	}
}

// Extract returns the hierarchy found in a raw address. Never errors:
// malformed or empty input yields an all-nil region.
func (re *RegionExtractor) Extract(rawAddress string) models.Region {
	region := models.Region{}

	s := strings.TrimSpace(rawAddress)
	if s == "" {
		return region
	}
	s = width.Fold.String(s)
	s = norm.NFC.String(s)

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '(' || r == ')'
	})

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		// Province first: 특별시/광역시 tokens also end in 시 and must
		// not be misread as cities.
		if region.Province == nil {
			if official, ok := re.provinceAliases[token]; ok {
				region.Province = &official
				continue
			}
			if re.hasSuffix(token, re.provinceSuffixes) {
				p := token
				region.Province = &p
				continue
			}
		}
		if re.hasSuffix(token, re.provinceSuffixes) {
			continue
		}

		// City level: keep the most specific token seen, so
		// "성남시 분당구" resolves to 분당구 which the crawler also
		// reports on its own.
		if re.hasSuffix(token, re.citySuffixes) && len([]rune(token)) > 1 {
			city := token
			region.City = &city
			continue
		}

		if region.Subdistrict == nil && re.hasSuffix(token, re.subdistrictSuffixes) && len([]rune(token)) > 1 {
			sub := token
			region.Subdistrict = &sub
		}
	}

	return region
}

func (re *RegionExtractor) hasSuffix(token string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(token, suf) && token != suf {
			return true
		}
	}
	return false
}

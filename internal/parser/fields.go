package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/complex-registry/app/models"
)

// National coordinate bounding range. Values outside are nulled at
// ingestion, never guessed or clamped.
const (
	MinLatitude  = 33.0
	MaxLatitude  = 39.0
	MinLongitude = 124.0
	MaxLongitude = 132.0
)

var (
	areaPattern  = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*(?:㎡|m2|m²)?`)
	floorPattern = regexp.MustCompile(`(-?[0-9]+)\s*(?:/\s*[0-9]+\s*)?층?`)
	yearPattern  = regexp.MustCompile(`(19[0-9]{2}|20[0-9]{2})`)
)

// ValidCoordinates reports whether a coordinate pair is plausible for
// the national range.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= MinLatitude && lat <= MaxLatitude &&
		lng >= MinLongitude && lng <= MaxLongitude
}

// SanitizeCoordinates returns the pair as stored coordinates, or nil
// when absent or implausible.
func SanitizeCoordinates(coords *models.Coordinates) *models.Coordinates {
	if coords == nil || !ValidCoordinates(coords.Latitude, coords.Longitude) {
		return nil
	}
	return coords
}

// ParseArea parses exclusive-area text such as "84.97㎡". Nil on
// unparseable input.
func ParseArea(raw string) *float64 {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return nil
	}
	m := areaPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// ParseFloor parses floor text: "12층", "12/20층" (unit floor over total
// floors) and bare numbers. Descriptive values like "저층" carry no
// usable number and yield nil.
func ParseFloor(raw string) *int {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return nil
	}
	m := floorPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

// ParseCompletionYear pulls a plausible construction year out of text.
func ParseCompletionYear(raw string) *int {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return nil
	}
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, _ := strconv.Atoi(m[1])
	return &v
}

// ParseDealType maps source deal-type text to the canonical constants.
// Empty string when unrecognized; the listing is still ingested.
func ParseDealType(raw string) string {
	switch strings.TrimSpace(raw) {
	case "매매", "sale":
		return models.DealTypeSale
	case "전세", "jeonse":
		return models.DealTypeJeonse
	case "월세", "monthly_rent":
		return models.DealTypeMonthlyRent
	default:
		return ""
	}
}

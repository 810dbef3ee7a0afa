package parser

import (
	"testing"

	"github.com/complex-registry/app/models"
)

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"seoul", 37.5665, 126.9780, true},
		{"jeju", 33.4996, 126.5312, true},
		{"zero pair", 0, 0, false},
		{"swapped", 126.9780, 37.5665, false},
		{"out of range north", 43.0, 127.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidCoordinates(tc.lat, tc.lng); got != tc.want {
				t.Errorf("ValidCoordinates(%v, %v) = %v, want %v", tc.lat, tc.lng, got, tc.want)
			}
		})
	}
}

func TestSanitizeCoordinates(t *testing.T) {
	if got := SanitizeCoordinates(nil); got != nil {
		t.Errorf("SanitizeCoordinates(nil) = %+v, want nil", got)
	}
	if got := SanitizeCoordinates(&models.Coordinates{Latitude: 0, Longitude: 0}); got != nil {
		t.Errorf("implausible pair survived: %+v", got)
	}
	valid := &models.Coordinates{Latitude: 37.5, Longitude: 127.0}
	if got := SanitizeCoordinates(valid); got != valid {
		t.Errorf("valid pair was altered: %+v", got)
	}
}

func TestParseArea(t *testing.T) {
	cases := []struct {
		in   string
		want float64 // -1 means nil
	}{
		{"84.97㎡", 84.97},
		{"84.97m2", 84.97},
		{"59", 59},
		{"", -1},
		{"미정", -1},
	}
	for _, tc := range cases {
		got := ParseArea(tc.in)
		if tc.want == -1 {
			if got != nil {
				t.Errorf("ParseArea(%q) = %v, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Errorf("ParseArea(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFloor(t *testing.T) {
	cases := []struct {
		in   string
		want int // use sentinel -999 for nil
	}{
		{"12층", 12},
		{"12/20층", 12},
		{"3", 3},
		{"-1층", -1},
		{"저층", -999},
		{"", -999},
	}
	for _, tc := range cases {
		got := ParseFloor(tc.in)
		if tc.want == -999 {
			if got != nil {
				t.Errorf("ParseFloor(%q) = %d, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Errorf("ParseFloor(%q) = %v, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseCompletionYear(t *testing.T) {
	cases := []struct {
		in   string
		want int // 0 means nil
	}{
		{"1995년 준공", 1995},
		{"2021", 2021},
		{"준공연도 없음", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := ParseCompletionYear(tc.in)
		if tc.want == 0 {
			if got != nil {
				t.Errorf("ParseCompletionYear(%q) = %d, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Errorf("ParseCompletionYear(%q) = %v, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseDealType(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"매매", models.DealTypeSale},
		{"전세", models.DealTypeJeonse},
		{"월세", models.DealTypeMonthlyRent},
		{"sale", models.DealTypeSale},
		{"기타", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ParseDealType(tc.in); got != tc.want {
			t.Errorf("ParseDealType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

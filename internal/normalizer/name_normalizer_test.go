package normalizer

import "testing"

func TestNormalize(t *testing.T) {
	nn := NewNameNormalizer()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"phase suffix keeps number", "정든한진6차", "정든한진6"},
		{"phase suffix with spacing and qualifier", "정든한진 6차 아파트", "정든한진 6"},
		{"danji suffix keeps number", "래미안 제3단지", "래미안 3"},
		{"bare danji", "래미안 3단지", "래미안 3"},
		{"apartment qualifier stripped", "반포자이 아파트", "반포자이"},
		{"latin qualifier stripped", "Hillstate Apt", "hillstate"},
		{"latin qualifier needs word boundary", "captain tower", "captain tower"},
		{"case folding", "LOTTE CASTLE", "lotte castle"},
		{"full-width folding", "ｈｉｌｌｓｔａｔｅ １", "hillstate 1"},
		{"whitespace collapse", "  반포  자이  ", "반포 자이"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := nn.Normalize(tc.in)
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	nn := NewNameNormalizer()

	inputs := []string{
		"정든한진 6차 아파트",
		"래미안 제3단지",
		"Hillstate Apt",
		"반포자이",
		"",
	}
	for _, in := range inputs {
		once := nn.Normalize(in)
		twice := nn.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalizeKeepsPhasesDistinct(t *testing.T) {
	nn := NewNameNormalizer()

	a := nn.Normalize("한진1차")
	b := nn.Normalize("한진2차")
	if a == b {
		t.Fatalf("phases collapsed: %q == %q", a, b)
	}
}

func TestAsciiFold(t *testing.T) {
	nn := NewNameNormalizer()

	got := nn.AsciiFold("hillstate 3")
	if got != "hillstate 3" {
		t.Errorf("AsciiFold(latin) = %q, want %q", got, "hillstate 3")
	}

	folded := nn.AsciiFold(nn.Normalize("반포자이"))
	if folded == "" {
		t.Fatal("AsciiFold(hangul) returned empty fingerprint")
	}
	for _, r := range folded {
		if r > 127 {
			t.Fatalf("AsciiFold left non-ASCII rune %q in %q", r, folded)
		}
		if r >= 'A' && r <= 'Z' {
			t.Fatalf("AsciiFold left uppercase in %q", folded)
		}
	}
}

package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already normalized", input: "jakestl314", expected: "jakestl314"},
		{name: "spaces dropped", input: "jake stl 314", expected: "jakestl314"},
		{name: "mixed separators", input: "Jake-STL_314", expected: "jakestl314"},
		{name: "surrounding whitespace", input: "  Jake STL 314 \t", expected: "jakestl314"},
		{name: "internal whitespace runs", input: "jake \t\n stl   314", expected: "jakestl314"},
		{name: "full-width forms", input: "Ｊａｋｅ", expected: "jake"},
		{name: "punctuation kept", input: "Dr.Who", expected: "dr.who"},
		{name: "empty", input: "", expected: ""},
		{name: "separators only", input: " - _ ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{
		"jake stl 314",
		"Jake-STL_314",
		"  ÀLÏCE  ",
		"Ｊａｋｅ＿ＳＴＬ",
		"ﬁre_fox",
		"Σίσυφος",
		"ᎠᏍᎦᏯ ꭰꮝꭶꮿ",
		"",
	}

	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), "input %q", in)
	}
}

func TestNormalizeName_IdempotentEveryRune(t *testing.T) {
	var failed []rune
	for r := rune(0); r <= 0x2FFFF; r++ {
		if r >= 0xD800 && r <= 0xDFFF {
			continue
		}
		once := NormalizeName(string(r))
		if NormalizeName(once) != once {
			failed = append(failed, r)
		}
	}
	assert.Empty(t, failed, "non-idempotent runes")
}

func TestNormalizeName_CherokeeCaseForms(t *testing.T) {
	assert.Equal(t, NormalizeName("Ꭰ"), NormalizeName("ꭰ"))
	assert.Equal(t, NormalizeName("ᎠᏍᎦᏯ"), NormalizeName("ꭰꮝꭶꮿ"))
	assert.Equal(t, NormalizeName("Ᏸ"), NormalizeName("ᏸ"))
}

func FuzzNormalizeName(f *testing.F) {
	for _, seed := range []string{"jake stl 314", "Ｊａｋｅ", "Ꭰ", "ß-ǅ_İ", " - "} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		once := NormalizeName(raw)
		if twice := NormalizeName(once); twice != once {
			t.Fatalf("NormalizeName(%q) = %q, second pass %q", raw, once, twice)
		}
	})
}

func TestNormalizeName_SameIdentitySignal(t *testing.T) {
	assert.Equal(t, NormalizeName("jake stl 314"), NormalizeName("jakestl314"))
	assert.Equal(t, NormalizeName("Night_Owl"), NormalizeName("night owl"))
	assert.NotEqual(t, NormalizeName("night owl"), NormalizeName("night owls"))
}

func TestCleanDisplayName(t *testing.T) {
	assert.Equal(t, "Jake STL 314", CleanDisplayName("  Jake   STL 314 "))
	assert.Equal(t, "Night_Owl", CleanDisplayName("Night_Owl"))
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, FoldName("Jake STL"), FoldName("jake  stl"))
	assert.NotEqual(t, FoldName("jake stl"), FoldName("jake-stl"))
}

package text

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Cartão  Crédito": "cartao credito",
		"  ALMOÇO ":        "almoco",
		"Itaú":             "itau",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWordsKeepsHandlesAndAmounts(t *testing.T) {
	got := Words("Gastei R$50,90 com @ana.silva!")
	want := []string{"gastei", "r$50,90", "com", "@ana.silva"}
	if len(got) != len(want) {
		t.Fatalf("Words = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Words[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestContainsWord(t *testing.T) {
	if !ContainsWord("paguei no cartão de crédito", "cartao de credito") {
		t.Fatal("expected phrase match")
	}
	if ContainsWord("pixel art", "pix") {
		t.Fatal("expected no partial word match")
	}
}

func TestCapitalize(t *testing.T) {
	if got := Capitalize("álcool gel"); got != "Álcool gel" {
		t.Fatalf("Capitalize = %q", got)
	}
	if got := Capitalize(""); got != "" {
		t.Fatalf("Capitalize empty = %q", got)
	}
}

func TestWordsTrimsSentencePunctuation(t *testing.T) {
	got := Words("I had lunch. Then, coffee")
	if got[2] != "lunch" || got[4] != "coffee" || got[3] != "then" {
		t.Fatalf("Words = %v", got)
	}
}

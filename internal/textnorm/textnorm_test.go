package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"İstanbul", "istanbul"},
		{"ISPARTA", "isparta"},
		{"Kadıköy", "kadikoy"},
		{"ŞİŞLİ", "sisli"},
		{"Çağlayan, Güneşli", "caglayan gunesli"},
		{"  Bağdat   Caddesi No:45 ", "bagdat caddesi no 45"},
		{"Atatürk Mah. 123 Sk.", "ataturk mah 123 sk"},
		{"i̇stanbul", "istanbul"},
		{"Hâkimiyet-i Milliye", "hakimiyet i milliye"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input), "Normalize(%q)", tt.input)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"İstanbul Kadıköy Mah.", "ĞÜŞÖÇI ğüşöçı", "Bağdat Cd. No:45/3 D:7", "日本 東京", "🙂 emoji", ""}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)
		k := NormalizeKey(in)
		assert.Equal(t, k, NormalizeKey(k), "NormalizeKey not idempotent for %q", in)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"İstanbul", "istanbul"},
		{" Afyonkarahisar ", "afyonkarahisar"},
		{"Kahramanmaraş", "kahramanmaras"},
		{"Şanlı  Urfa", "sanli urfa"},
		{"K.Maraş", "k.maras"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.input), "NormalizeKey(%q)", tt.input)
	}
}

func TestVariantsAgreeOnLetters(t *testing.T) {
	for _, s := range []string{"Çanakkale", "Iğdır", "Muğla", "Gümüşhane", "İzmir", "Şırnak"} {
		assert.Equal(t, Normalize(s), Normalize(NormalizeKey(s)), s)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"bagdat", "cd", "no", "45"}, Tokens("Bağdat Cd. No:45"))
	assert.Empty(t, Tokens(" , "))
}

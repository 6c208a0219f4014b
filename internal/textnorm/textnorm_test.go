package textnorm

import (
	"testing"
)

func TestNorm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "ruta norte", "RUTA NORTE"},
		{"already normal", "RUTA NORTE", "RUTA NORTE"},
		{"accents folded", "Café Olé", "CAFE OLE"},
		{"upper accents", "CAÑÓN ÚNICO", "CANON UNICO"},
		{"cedilla and diaeresis", "Barça pingüino", "BARCA PINGUINO"},
		{"punctuation dropped", "coca-kola", "COCAKOLA"},
		{"punctuation inside words", "l'estanc (nou)", "LESTANC NOU"},
		{"digits kept", "ruta 12 b", "RUTA 12 B"},
		{"space runs collapsed", "  super   uno  ", "SUPER UNO"},
		{"tabs and newlines dropped", "super\tuno\ndos", "SUPERUNODOS"},
		{"empty", "", ""},
		{"only punctuation", "--- ¿? ---", ""},
		{"unicode outside set dropped", "crème brûlée", "CRME BRLEE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Norm(tt.in); got != tt.want {
				t.Errorf("Norm(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormStable(t *testing.T) {
	in := "  Pescadería  Ñíguez,  S.L. "
	first := Norm(in)
	for i := 0; i < 3; i++ {
		if got := Norm(in); got != first {
			t.Fatalf("Norm not stable: %q vs %q", got, first)
		}
	}
	if got := Norm(first); got != first {
		t.Fatalf("Norm not idempotent on its own output: %q -> %q", first, got)
	}
}

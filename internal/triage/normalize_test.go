package triage

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Reunião", "reuniao"},
		{"ATUALIZAÇÃO", "atualizacao"},
		{"Relatório Orçamento", "relatorio orcamento"},
		{"Parabéns, Olá!", "parabens, ola!"},
		{"  espaços  ", "  espacos  "},
		{"!!!???", "!!!???"},
		{"こんにちは、元気ですか", "こんにちは、元気ですか"},
		{"안녕하세요", "안녕하세요"},
		{"Привет", "привет"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeInvalidUTF8(t *testing.T) {
	// Must not panic; the exact replacement is not important.
	_ = Normalize("caf\xe9 \xff")
}

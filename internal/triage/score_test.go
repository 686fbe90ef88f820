package triage

import "testing"

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name    string
		matches Matches
		want    int
	}{
		{name: "Nothing", matches: Matches{}, want: 0},
		{name: "Two productive hits", matches: Matches{ProductiveHits: []string{"status", "prazo"}}, want: 4},
		{name: "Two productive hits and URL", matches: Matches{ProductiveHits: []string{"status", "prazo"}, HasURL: true}, want: 2},
		{name: "Unproductive hits", matches: Matches{UnproductiveHits: []string{"bom dia", "obrigado"}}, want: -4},
		{name: "Reference", matches: Matches{Reference: &Reference{Keyword: "pedido", Digits: "123"}}, want: 2},
		{name: "Question", matches: Matches{HasQuestion: true}, want: 1},
		{name: "Attachment", matches: Matches{Attachment: true}, want: 1},
		{name: "Promotional and URL", matches: Matches{Promotional: true, HasURL: true}, want: -5},
		{name: "Greeting only", matches: Matches{UnproductiveHits: []string{"bom dia"}, GreetingOnly: true}, want: -4},
		{
			name: "Everything",
			matches: Matches{
				ProductiveHits:   []string{"a"},
				UnproductiveHits: []string{"b"},
				Reference:        &Reference{Keyword: "ticket", Digits: "999"},
				HasQuestion:      true,
				Attachment:       true,
				HasURL:           true,
				Promotional:      true,
				GreetingOnly:     true,
			},
			want: 2 - 2 + 2 + 1 + 1 - 2 - 3 - 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.matches); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		score int
		want  Category
	}{
		{-5, Unproductive},
		{0, Unproductive},
		{1, Unproductive},
		{2, Productive},
		{12, Productive},
	}
	for _, tt := range tests {
		if got := Categorize(tt.score); got != tt.want {
			t.Errorf("Categorize(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestContributionsCarryTerms(t *testing.T) {
	m := New(nil).Match("Qual o status do pedido 1234? Segue anexo o comprovante.")
	contribs := Contributions(m)

	var terms []string
	for _, c := range contribs {
		if c.Signal == SignalProductive {
			terms = append(terms, c.Term)
		}
		if c.Signal == SignalReference && c.Term != "pedido 1234" {
			t.Errorf("reference term = %q", c.Term)
		}
	}
	want := []string{"status", "pedido", "anexo", "segue anexo"}
	if len(terms) != len(want) {
		t.Fatalf("productive terms = %v, want %v", terms, want)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("terms[%d] = %q, want %q", i, terms[i], want[i])
		}
	}
	if Score(m) != 12 {
		t.Errorf("Score = %d, want 12", Score(m))
	}
}

func TestComposeReply(t *testing.T) {
	ref := &Reference{Keyword: "ticket", Digits: "4821"}
	tests := []struct {
		name     string
		category Category
		matches  Matches
		want     string
	}{
		{"Productive with reference", Productive, Matches{Reference: ref},
			"Olá! Registramos sua solicitação referente ao ticket 4821. Nossa equipe vai verificar e retornar com uma atualização em breve. Se possível, compartilhe anexos ou detalhes adicionais para agilizar o atendimento."},
		{"Productive without reference", Productive, Matches{}, replyProductive},
		{"Productive ignores URL", Productive, Matches{HasURL: true}, replyProductive},
		{"Unproductive promotional", Unproductive, Matches{Promotional: true}, replyPromotional},
		{"Unproductive URL", Unproductive, Matches{HasURL: true}, replyPromotional},
		{"Unproductive generic", Unproductive, Matches{Reference: ref}, replyNoAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeReply(tt.category, tt.matches); got != tt.want {
				t.Errorf("ComposeReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

package classifier

import (
	"testing"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
)

var solarKeywords = []Keyword{
	{Category: "energia_solar", Keyword: "energia solar", Weight: 8, IsActive: true},
	{Category: "energia_solar", Keyword: "conta", Weight: 3, IsActive: true},
	{Category: "energia_solar", Keyword: "painel", Weight: 6, IsActive: true},
	{Category: "bateria_armazenamento", Keyword: "bateria", Weight: 8, IsActive: true},
	{Category: "carregador_veicular", Keyword: "carro eletrico", Weight: 10, IsActive: true},
	{Category: conversation.CategoryGreeting, Keyword: "oi", Weight: 3, IsActive: true},
	{Category: conversation.CategoryGreeting, Keyword: "bom dia", Weight: 3, IsActive: true},
	{Category: "manutencao_solar", Keyword: "limpeza", Weight: 3, IsActive: false},
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Olá, Mundo!!", "ola mundo"},
		{"  CONTA   de  LUZ  ", "conta de luz"},
		{"carro-elétrico/híbrido", "carro eletrico hibrido"},
		{"R$ 350,00", "r 350 00"},
		{"ação\tmanutenção\ninstalação", "acao manutencao instalacao"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestScoreTextCombinedScenario(t *testing.T) {
	s := ScoreText("oi quero saber sobre energia solar minha conta é 350", solarKeywords)
	if s.Category != "energia_solar" {
		t.Fatalf("expected energia_solar, got %s", s.Category)
	}
	if s.Totals["energia_solar"] != 11 {
		t.Fatalf("expected score 11, got %d", s.Totals["energia_solar"])
	}
	if s.Confidence < 0.3 || s.Confidence != 11.0/20.0 {
		t.Fatalf("unexpected confidence %v", s.Confidence)
	}
}

func TestScoreTextNoSignal(t *testing.T) {
	s := ScoreText("xyz", solarKeywords)
	if s.Category != conversation.CategoryUndefined || s.Confidence != 0 {
		t.Fatalf("expected undefined with zero confidence, got %+v", s)
	}
}

func TestScoreTextConfidenceFloorAndCap(t *testing.T) {
	s := ScoreText("Bom dia", solarKeywords)
	if s.Category != conversation.CategoryGreeting || s.Confidence != 0.3 {
		t.Fatalf("expected floored greeting confidence, got %+v", s)
	}

	s = ScoreText("carro elétrico com bateria e painel de energia solar", solarKeywords)
	if s.Confidence > 1 {
		t.Fatalf("confidence must be capped, got %v", s.Confidence)
	}
}

func TestScoreTextIgnoresInactiveKeywords(t *testing.T) {
	s := ScoreText("preciso de limpeza", solarKeywords)
	if s.Category != conversation.CategoryUndefined {
		t.Fatalf("inactive keyword should not match, got %s", s.Category)
	}
}

func TestScoreTextTieFavoursSpecificCategory(t *testing.T) {
	kws := []Keyword{
		{Category: conversation.CategoryGreeting, Keyword: "ola", Weight: 5, IsActive: true},
		{Category: "manutencao_solar", Keyword: "manutencao", Weight: 5, IsActive: true},
		{Category: "energia_solar", Keyword: "solar", Weight: 5, IsActive: true},
	}
	s := ScoreText("olá, manutenção solar", kws)
	if s.Category != "energia_solar" {
		t.Fatalf("expected alphabetical specific winner, got %s", s.Category)
	}
}

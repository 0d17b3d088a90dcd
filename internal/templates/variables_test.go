package templates

import (
	"testing"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
)

func TestBuildVariables(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	vars := BuildVariables(VariableInput{
		Conversation: conversation.Conversation{
			CustomerName:    "Ana Souza",
			WhatsAppNumber:  "5511999990000",
			LeadTemperature: "warm",
			LeadScore:       55,
		},
		Context: map[string]any{
			"conta_luz":   350.0,
			"cidade":      "Campinas",
			"tipo_imovel": "casa",
			"_raw":        "ignored",
		},
		Category:  "energia_solar",
		Knowledge: "[1] Painéis",
		Now:       now,
	})

	expect := map[string]string{
		"nome_cliente":      "Ana Souza",
		"primeiro_nome":     "Ana",
		"cidade":            "Campinas",
		"tipo_imovel":       "casa",
		"categoria":         "energia_solar",
		"categoria_label":   "Energia Solar",
		"temperatura_label": "Morno",
		"lead_score":        "55",
		"conhecimento":      "[1] Painéis",
		"num_paineis":       "7",
		"economia_mensal":   "R$ 315,00",
		"conta_luz_valor":   "R$ 350,00",
		"data":              "10/03/2025",
		"hora":              "10:30",
		"saudacao_periodo":  "Bom dia",
	}
	for k, want := range expect {
		if vars[k] != want {
			t.Fatalf("vars[%q] = %q, want %q", k, vars[k], want)
		}
	}
	if _, ok := vars["_raw"]; ok {
		t.Fatalf("internal fields must not become variables")
	}
	if _, ok := vars["email"]; ok {
		t.Fatalf("missing values must stay absent")
	}
}

func TestSolarEstimatePanels(t *testing.T) {
	cases := []struct {
		bill   float64
		panels string
	}{
		{100, "2"},
		{350, "7"},
		{1000, "20"},
	}
	for _, tc := range cases {
		if got := SolarEstimate(tc.bill)["num_paineis"]; got != tc.panels {
			t.Fatalf("SolarEstimate(%v) panels = %s, want %s", tc.bill, got, tc.panels)
		}
	}
}

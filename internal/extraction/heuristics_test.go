package extraction

import "testing"

func TestHeuristicBill(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"minha conta é 350", 350},
		{"a conta de luz vem R$ 1.250,50 por mês", 1250.5},
		{"pago uns 480,90", 480.9},
		{"fatura de 1.200", 1200},
	}
	for _, tc := range cases {
		got := Heuristic(tc.text)[FieldBill]
		if got != tc.want {
			t.Fatalf("Heuristic(%q) bill = %v, want %v", tc.text, got, tc.want)
		}
	}
	if _, ok := Heuristic("quero energia solar")[FieldBill]; ok {
		t.Fatalf("expected no bill")
	}
}

func TestHeuristicCityAndEmail(t *testing.T) {
	f := Heuristic("Oi, moro em Belo Horizonte. Contato: Joao.Silva@Mail.com")
	if f[FieldCity] != "Belo Horizonte" {
		t.Fatalf("unexpected city %v", f[FieldCity])
	}
	if f[FieldEmail] != "joao.silva@mail.com" {
		t.Fatalf("unexpected email %v", f[FieldEmail])
	}
}

func TestHasUrgency(t *testing.T) {
	if !HasUrgency("Preciso disso URGENTE!") {
		t.Fatalf("expected urgency")
	}
	if !HasUrgency("pode ser amanhã?") {
		t.Fatalf("expected urgency for amanhã")
	}
	if HasUrgency("sem pressa, só pesquisando") {
		t.Fatalf("unexpected urgency")
	}
}

func TestNumber(t *testing.T) {
	fields := map[string]any{"a": 350.0, "b": "R$ 1.250,50", "c": "abc", "d": -3.0}
	if v, ok := Number(fields, "a"); !ok || v != 350 {
		t.Fatalf("unexpected a %v", v)
	}
	if v, ok := Number(fields, "b"); !ok || v != 1250.5 {
		t.Fatalf("unexpected b %v", v)
	}
	if _, ok := Number(fields, "c"); ok {
		t.Fatalf("c should not parse")
	}
	if _, ok := Number(fields, "d"); ok {
		t.Fatalf("negative values are rejected")
	}
}

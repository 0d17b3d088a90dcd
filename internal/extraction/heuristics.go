package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/classifier"
)

// Field keys stored in project_contexts.data.
const (
	FieldName    = "nome"
	FieldEmail   = "email"
	FieldCity    = "cidade"
	FieldBill    = "conta_luz"
	FieldUrgency = "urgencia"
	FieldRaw     = "_raw"
	UrgencyHigh  = "alta"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	billPattern  = regexp.MustCompile(`(?i)(?:conta|r\$|fatura|pago)[^0-9]{0,30}(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d{2,6}(?:[.,]\d{1,2})?)`)
	cityPattern  = regexp.MustCompile(`(?i:moro em|sou de|resido em|cidade de|aqui em)\s+(\p{Lu}\p{L}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{L}+)*)`)
)

var urgencyTerms = []string{
	"urgente",
	"urgencia",
	"o quanto antes",
	"o mais rapido",
	"imediato",
	"imediatamente",
	"essa semana",
	"esta semana",
	"hoje",
	"amanha",
	"preciso rapido",
}

// HasUrgency reports whether the text carries an urgency hint.
func HasUrgency(text string) bool {
	normalized := " " + classifier.Normalize(text) + " "
	for _, term := range urgencyTerms {
		if strings.Contains(normalized, " "+term+" ") {
			return true
		}
	}
	return false
}

// Heuristic pulls the fields that can be recognized without a model.
func Heuristic(text string) map[string]any {
	fields := make(map[string]any)
	if email := emailPattern.FindString(text); email != "" {
		fields[FieldEmail] = strings.ToLower(email)
	}
	if m := billPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			fields[FieldBill] = v
		}
	}
	if m := cityPattern.FindStringSubmatch(text); m != nil {
		fields[FieldCity] = strings.TrimSpace(m[1])
	}
	if HasUrgency(text) {
		fields[FieldUrgency] = UrgencyHigh
	}
	return fields
}

// parseAmount reads Brazilian formatted amounts such as 1.250,50 or 350.
func parseAmount(s string) (float64, bool) {
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Count(s, ".") == 1 && len(s)-strings.Index(s, ".") == 4:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Number reads a numeric context field that may have been stored as a number or a string.
func Number(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, v > 0
	case int:
		return float64(v), v > 0
	case string:
		cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.ToUpper(v)), "R$"))
		return parseAmount(cleaned)
	}
	return 0, false
}

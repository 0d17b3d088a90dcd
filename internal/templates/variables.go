package templates

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/extraction"
)

// Sizing constants for the solar estimate.
const (
	tariffPerKWh       = 0.85
	daysPerMonth       = 30
	peakSunHours       = 4.5
	systemEfficiency   = 0.8
	panelWatts         = 550
	savingsRate        = 0.9
	saoPauloOffsetSecs = -3 * 60 * 60
)

var (
	printer  = message.NewPrinter(language.BrazilianPortuguese)
	location = loadLocation()
)

func loadLocation() *time.Location {
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.FixedZone("BRT", saoPauloOffsetSecs)
}

// VariableInput is everything the variable set is built from.
type VariableInput struct {
	Conversation conversation.Conversation
	Context      map[string]any
	Category     string
	Knowledge    string
	Now          time.Time
}

// BuildVariables flattens conversation, project context, knowledge and derived values into
// template variables. Missing values are simply absent.
func BuildVariables(in VariableInput) map[string]string {
	vars := make(map[string]string)

	keys := make([]string, 0, len(in.Context))
	for k := range in.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if s := stringify(in.Context[k]); s != "" {
			vars[k] = s
		}
	}

	conv := in.Conversation
	name := firstNonEmpty(conv.CustomerName, contextString(in.Context, extraction.FieldName))
	setIf(vars, "nome_cliente", name)
	setIf(vars, "primeiro_nome", firstWord(name))
	setIf(vars, "email", firstNonEmpty(conv.CustomerEmail, contextString(in.Context, extraction.FieldEmail)))
	setIf(vars, "cidade", firstNonEmpty(conv.CustomerCity, contextString(in.Context, extraction.FieldCity)))
	setIf(vars, "whatsapp", conv.WhatsAppNumber)

	category := firstNonEmpty(in.Category, conv.Category)
	setIf(vars, "categoria", category)
	vars["categoria_label"] = conversation.CategoryLabel(category)
	setIf(vars, "temperatura", conv.LeadTemperature)
	setIf(vars, "temperatura_label", conversation.TemperatureLabel(conv.LeadTemperature))
	if conv.LeadScore > 0 {
		vars["lead_score"] = strconv.Itoa(conv.LeadScore)
	}
	setIf(vars, "conhecimento", in.Knowledge)

	if bill, ok := extraction.Number(in.Context, extraction.FieldBill); ok {
		for k, v := range SolarEstimate(bill) {
			vars[k] = v
		}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(location)
	vars["data"] = local.Format("02/01/2006")
	vars["hora"] = local.Format("15:04")
	vars["saudacao_periodo"] = greetingFor(local)
	return vars
}

// SolarEstimate derives consumption, system size, panel count and savings from a monthly bill.
func SolarEstimate(bill float64) map[string]string {
	kwh := bill / tariffPerKWh
	kwp := kwh / (daysPerMonth * peakSunHours * systemEfficiency)
	panels := int(math.Ceil(kwp * 1000 / panelWatts))
	monthly := bill * savingsRate
	return map[string]string{
		"conta_luz_valor": formatMoney(bill),
		"consumo_kwh":     printer.Sprintf("%.0f", kwh),
		"potencia_kwp":    printer.Sprintf("%.2f", kwp),
		"num_paineis":     strconv.Itoa(panels),
		"economia_mensal": formatMoney(monthly),
		"economia_anual":  formatMoney(monthly * 12),
	}
}

func formatMoney(v float64) string {
	return "R$ " + printer.Sprintf("%.2f", v)
}

func greetingFor(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "sim"
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func contextString(ctx map[string]any, key string) string {
	s, _ := ctx[key].(string)
	return strings.TrimSpace(s)
}

func setIf(vars map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		vars[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

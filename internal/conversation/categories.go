package conversation

// Category identifiers. Specific categories come from the keyword table; the
// generic ones below are structural and always exist.
const (
	CategoryUndefined     = "indefinido"
	CategoryGreeting      = "saudacao"
	CategoryInstitutional = "institucional"

	// CategoryGeneral tags knowledge shared by every category.
	CategoryGeneral = "geral"
)

var genericCategories = map[string]struct{}{
	CategoryUndefined:     {},
	CategoryGreeting:      {},
	CategoryInstitutional: {},
}

var categoryLabels = map[string]string{
	CategoryUndefined:       "Não identificado",
	CategoryGreeting:        "Saudação",
	CategoryInstitutional:   "Institucional",
	"energia_solar":         "Energia Solar",
	"bateria_armazenamento": "Baterias e Armazenamento",
	"carregador_veicular":   "Carregador Veicular",
	"manutencao_solar":      "Manutenção Solar",
}

// IsGenericCategory reports whether category is one of the structural generic categories.
func IsGenericCategory(category string) bool {
	_, ok := genericCategories[category]
	return ok
}

// IsSpecificCategory reports whether category is set and product specific.
func IsSpecificCategory(category string) bool {
	return category != "" && !IsGenericCategory(category)
}

// GenericCategories lists the structural categories.
func GenericCategories() []string {
	return []string{CategoryUndefined, CategoryGreeting, CategoryInstitutional}
}

// CategoryLabel returns a customer facing label for the category.
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	if category == "" {
		return categoryLabels[CategoryUndefined]
	}
	return category
}

// TemperatureLabel translates a lead temperature band.
func TemperatureLabel(temperature string) string {
	switch temperature {
	case "hot":
		return "Quente"
	case "warm":
		return "Morno"
	case "cold":
		return "Frio"
	default:
		return ""
	}
}

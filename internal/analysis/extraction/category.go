package extraction

import (
	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

type categoryHint struct {
	kind     ledger.Kind
	labels   map[intake.Locale]string
	names    []string
	keywords []string
}

// categoryHints map everyday vocabulary to a conventional category name.
var categoryHints = []categoryHint{
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Alimentação", intake.LocaleENUS: "Food"},
		names:    []string{"alimentacao", "food", "comida", "restaurante", "restaurants", "refeicao"},
		keywords: []string{"lunch", "dinner", "breakfast", "coffee", "pizza", "burger", "restaurant", "snack", "almoco", "jantar", "cafe", "lanche", "ifood", "padaria", "restaurante", "hamburguer", "sushi"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Mercado", intake.LocaleENUS: "Groceries"},
		names:    []string{"mercado", "supermercado", "groceries", "grocery", "compras"},
		keywords: []string{"groceries", "grocery", "supermarket", "mercado", "supermercado", "feira", "hortifruti", "acougue"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Transporte", intake.LocaleENUS: "Transport"},
		names:    []string{"transporte", "transport", "transportation", "carro", "car"},
		keywords: []string{"uber", "taxi", "bus", "onibus", "metro", "subway", "gasolina", "gas", "fuel", "combustivel", "estacionamento", "parking", "pedagio", "toll"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Moradia", intake.LocaleENUS: "Housing"},
		names:    []string{"moradia", "casa", "housing", "home", "contas"},
		keywords: []string{"aluguel", "rent", "condominio", "luz", "energia", "electricity", "agua", "water", "internet", "gas bill"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Saúde", intake.LocaleENUS: "Health"},
		names:    []string{"saude", "health"},
		keywords: []string{"farmacia", "pharmacy", "remedio", "medicine", "medico", "doctor", "consulta", "dentista", "dentist", "academia", "gym", "exame"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Lazer", intake.LocaleENUS: "Leisure"},
		names:    []string{"lazer", "leisure", "entretenimento", "entertainment"},
		keywords: []string{"cinema", "movie", "movies", "show", "bar", "cerveja", "beer", "netflix", "spotify", "game", "jogo", "viagem", "trip", "festa", "party"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Educação", intake.LocaleENUS: "Education"},
		names:    []string{"educacao", "education", "estudos"},
		keywords: []string{"curso", "course", "livro", "book", "books", "faculdade", "college", "escola", "school", "mensalidade", "tuition"},
	},
	{
		kind:     ledger.Expense,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Compras", intake.LocaleENUS: "Shopping"},
		names:    []string{"compras", "shopping"},
		keywords: []string{"roupa", "roupas", "clothes", "shoes", "tenis", "sapato", "amazon", "shopee", "presente", "gift", "eletronico", "celular", "phone"},
	},
	{
		kind:     ledger.Income,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Salário", intake.LocaleENUS: "Salary"},
		names:    []string{"salario", "salary", "pagamento", "paycheck"},
		keywords: []string{"salario", "salary", "paycheck", "pagamento", "holerite", "wage"},
	},
	{
		kind:     ledger.Income,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Freelance", intake.LocaleENUS: "Freelance"},
		names:    []string{"freelance", "freela", "extra", "renda extra", "side income"},
		keywords: []string{"freela", "freelance", "bico", "job", "projeto", "project", "cliente", "client"},
	},
	{
		kind:     ledger.Income,
		labels:   map[intake.Locale]string{intake.LocalePTBR: "Investimentos", intake.LocaleENUS: "Investments"},
		names:    []string{"investimentos", "investments", "rendimentos", "dividends"},
		keywords: []string{"dividendos", "dividends", "rendimento", "rendimentos", "juros", "interest", "cdb", "tesouro"},
	},
}

// SuggestCategory names the category that best fits msg: one of the user's
// own categories mentioned verbatim, then one reached through the vocabulary
// hints. It returns "" when nothing fits; the resolver then falls back to the
// first category of the kind.
func SuggestCategory(msg string, kind ledger.Kind, categories []ledger.Category, locale intake.Locale) string {
	for _, c := range categories {
		if c.Kind == kind && text.ContainsWord(msg, c.Name) {
			return c.Name
		}
	}

	for _, hint := range categoryHints {
		if hint.kind != kind || !text.ContainsAny(msg, hint.keywords) {
			continue
		}
		for _, c := range categories {
			if c.Kind != kind {
				continue
			}
			folded := text.Fold(c.Name)
			for _, name := range hint.names {
				if folded == name || text.ContainsWord(folded, name) {
					return c.Name
				}
			}
		}
		return hint.labels[locale]
	}
	return ""
}

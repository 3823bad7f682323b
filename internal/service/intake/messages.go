package intake

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	ledgersvc "github.com/zhouzirui/finchat/backend/internal/service/ledger"
)

// catalog holds the reply texts of one locale.
type catalog struct {
	decimalSep, thousandsSep string

	kindExpense, kindIncome string
	payment                 map[ledger.PaymentMethod]string

	confirmHeader, confirmFooter                         string
	labelKind, labelAmount, labelDescription             string
	labelCategory, labelPayment, labelCard               string
	labelInstallments, labelSharedWith, yourPart, theirs string

	saved, savedInstallments, cancelled, expired, nothingPending string
	disambiguation, replaced, corrected, askCorrectionField      string
	invalidCorrection, installmentsNeedCredit                    string
	help, notUnderstood, questionHint                            string
	categoriesHeader, expenseHeader, incomeHeader, noneListed    string

	userNotLinked, lowConfidence, noAmount, invalidShare       string
	noCategories, noMatchingCategory, cardNotResolved, noCards string
	shareTargetNotFound                                        string
	whatsappFree, sharedTierCap, persistence, internal         string

	audioUnavailable, audioFailed, unsupported string
}

var catalogs = map[model.Locale]*catalog{
	model.LocalePTBR: {
		decimalSep:   ",",
		thousandsSep: ".",
		kindExpense:  "Despesa",
		kindIncome:   "Receita",
		payment: map[ledger.PaymentMethod]string{
			ledger.PaymentPix:      "PIX",
			ledger.PaymentCredit:   "Crédito",
			ledger.PaymentDebit:    "Débito",
			ledger.PaymentCash:     "Dinheiro",
			ledger.PaymentTransfer: "Transferência",
		},
		confirmHeader:     "📝 Confirma esta transação?",
		confirmFooter:     "Responda *sim* para salvar ou *não* para cancelar. Para corrigir, diga por exemplo \"muda a categoria para Lazer\".",
		labelKind:         "Tipo",
		labelAmount:       "Valor",
		labelDescription:  "Descrição",
		labelCategory:     "Categoria",
		labelPayment:      "Pagamento",
		labelCard:         "Cartão",
		labelInstallments: "Parcelas",
		labelSharedWith:   "Dividido com",
		yourPart:          "sua parte",
		theirs:            "parte de %s",

		saved:                  "✅ Transação salva: %s de %s.",
		savedInstallments:      "✅ Transação salva em %d parcelas de %s (%s).",
		cancelled:              "❌ Transação cancelada. Nada foi salvo.",
		expired:                "⏰ A transação pendente expirou depois de 5 minutos sem resposta e não foi salva. Envie de novo se quiser registrá-la.",
		nothingPending:         "Não há nenhuma transação aguardando confirmação. Envie algo como \"gastei 50 no almoço\".",
		disambiguation:         "Não entendi. Responda *sim* para salvar a transação pendente ou *não* para cancelar.",
		replaced:               "A transação pendente anterior foi substituída por esta nova.",
		corrected:              "✏️ Pronto, corrigi a transação.",
		askCorrectionField:     "O que você quer corrigir? Valor, descrição, categoria ou forma de pagamento.",
		invalidCorrection:      "Não consegui aplicar essa correção. Tente algo como \"muda o valor para 60\".",
		installmentsNeedCredit: "Compras parceladas são sempre no crédito. Cancele e envie de novo sem parcelas para usar outra forma de pagamento.",
		help: "Eu registro suas finanças pelo WhatsApp. Exemplos:\n" +
			"• \"gastei 50 no almoço\"\n" +
			"• \"recebi 3500 de salário\"\n" +
			"• \"comprei um celular de 1200 em 10x no cartão Nubank\"\n" +
			"• \"jantar 120 dividido com @bruno\"\n" +
			"Depois é só confirmar com *sim* ou cancelar com *não*. Envie \"categorias\" para ver suas categorias.",
		notUnderstood:    "Não entendi. Para registrar uma transação, envie algo como \"gastei 50 no almoço\". Envie \"ajuda\" para ver exemplos.",
		questionHint:     "Por aqui eu só registro transações. Envie \"ajuda\" para ver o que posso fazer.",
		categoriesHeader: "📂 Suas categorias:",
		expenseHeader:    "Despesas",
		incomeHeader:     "Receitas",
		noneListed:       "Você ainda não tem categorias cadastradas. Crie algumas no app.",

		userNotLinked:       "Seu número não está vinculado a nenhuma conta. Cadastre este WhatsApp no app para começar.",
		lowConfidence:       "Não consegui entender a transação com segurança. Pode reescrever com valor e descrição? Ex.: \"gastei 50 no almoço\".",
		noAmount:            "Não encontrei o valor na mensagem. Ex.: \"gastei 50 no almoço\".",
		invalidShare:        "A divisão não fecha: a sua parte precisa ficar entre 0 e o valor total (ou entre 0% e 100%).",
		noCategories:        "Você não tem categorias desse tipo. Crie uma no app e tente de novo.",
		noMatchingCategory:  "Não encontrei essa categoria. Suas categorias: %s.",
		cardNotResolved:     "Não identifiquei o cartão. Diga qual foi: %s.",
		noCards:             "Você não tem cartão de crédito cadastrado. Cadastre um no app ou use outra forma de pagamento (pix, débito, dinheiro).",
		shareTargetNotFound: "Não encontrei com quem dividir. Informe o @usuário ou o nome de um contato.",
		whatsappFree:        "Você atingiu o limite mensal de transações pelo WhatsApp do plano gratuito. Faça upgrade no app para continuar.",
		sharedTierCap:       "Você atingiu o limite de transações compartilhadas do seu plano.",
		persistence:         "⚠️ Não consegui salvar a transação agora. Ela continua pendente: responda *sim* para tentar de novo.",
		internal:            "⚠️ Algo deu errado do nosso lado. Tente novamente em instantes.",

		audioUnavailable: "Ainda não consigo ouvir áudios. Envie a transação por texto.",
		audioFailed:      "Não consegui entender o áudio. Pode enviar por texto?",
		unsupported:      "Só entendo mensagens de texto e áudio.",
	},
	model.LocaleENUS: {
		decimalSep:   ".",
		thousandsSep: ",",
		kindExpense:  "Expense",
		kindIncome:   "Income",
		payment: map[ledger.PaymentMethod]string{
			ledger.PaymentPix:      "PIX",
			ledger.PaymentCredit:   "Credit",
			ledger.PaymentDebit:    "Debit",
			ledger.PaymentCash:     "Cash",
			ledger.PaymentTransfer: "Transfer",
		},
		confirmHeader:     "📝 Confirm this transaction?",
		confirmFooter:     "Reply *yes* to save or *no* to cancel. To fix something, say for example \"change the category to Leisure\".",
		labelKind:         "Type",
		labelAmount:       "Amount",
		labelDescription:  "Description",
		labelCategory:     "Category",
		labelPayment:      "Payment",
		labelCard:         "Card",
		labelInstallments: "Installments",
		labelSharedWith:   "Shared with",
		yourPart:          "your part",
		theirs:            "%s's part",

		saved:                  "✅ Transaction saved: %s for %s.",
		savedInstallments:      "✅ Transaction saved in %d installments of %s (%s).",
		cancelled:              "❌ Transaction cancelled. Nothing was saved.",
		expired:                "⏰ The pending transaction expired after 5 minutes without an answer and was not saved. Send it again to record it.",
		nothingPending:         "There is no transaction waiting for confirmation. Send something like \"I spent 50 on lunch\".",
		disambiguation:         "Sorry, I didn't get that. Reply *yes* to save the pending transaction or *no* to cancel it.",
		replaced:               "Your previous pending transaction was replaced by this one.",
		corrected:              "✏️ Done, I updated the transaction.",
		askCorrectionField:     "What do you want to change? Amount, description, category or payment method.",
		invalidCorrection:      "I couldn't apply that correction. Try something like \"change the amount to 60\".",
		installmentsNeedCredit: "Installment purchases are always on credit. Cancel and send it again without installments to use another payment method.",
		help: "I record your finances over WhatsApp. Examples:\n" +
			"• \"I spent 50 on lunch\"\n" +
			"• \"received 3500 salary\"\n" +
			"• \"bought a phone for 1200 in 10x on my Nubank card\"\n" +
			"• \"dinner 120 split with @bruno\"\n" +
			"Then confirm with *yes* or cancel with *no*. Send \"categories\" to see your categories.",
		notUnderstood:    "Sorry, I didn't get that. To record a transaction send something like \"I spent 50 on lunch\". Send \"help\" for examples.",
		questionHint:     "Here I only record transactions. Send \"help\" to see what I can do.",
		categoriesHeader: "📂 Your categories:",
		expenseHeader:    "Expenses",
		incomeHeader:     "Income",
		noneListed:       "You don't have any categories yet. Create some in the app.",

		userNotLinked:       "Your number is not linked to an account. Register this WhatsApp number in the app to get started.",
		lowConfidence:       "I couldn't read the transaction reliably. Could you rewrite it with an amount and a description? E.g. \"I spent 50 on lunch\".",
		noAmount:            "I couldn't find an amount in your message. E.g. \"I spent 50 on lunch\".",
		invalidShare:        "That split doesn't add up: your part must be between 0 and the total (or between 0% and 100%).",
		noCategories:        "You don't have categories of this kind. Create one in the app and try again.",
		noMatchingCategory:  "I couldn't find that category. Your categories: %s.",
		cardNotResolved:     "I couldn't tell which card you used. Which one was it: %s?",
		noCards:             "You don't have a credit card registered. Add one in the app or use another payment method (pix, debit, cash).",
		shareTargetNotFound: "I couldn't find who to split with. Tell me their @username or the name of a contact.",
		whatsappFree:        "You reached the monthly WhatsApp limit of the free plan. Upgrade in the app to keep going.",
		sharedTierCap:       "You reached the shared transactions limit of your plan.",
		persistence:         "⚠️ I couldn't save the transaction right now. It is still pending: reply *yes* to try again.",
		internal:            "⚠️ Something went wrong on our side. Please try again in a moment.",

		audioUnavailable: "I can't listen to voice notes yet. Please send the transaction as text.",
		audioFailed:      "I couldn't understand the voice note. Could you send it as text?",
		unsupported:      "I only understand text and voice messages.",
	},
}

func messagesFor(locale model.Locale) *catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs[model.LocalePTBR]
}

// money formats an amount in reais with the locale's separators.
func (c *catalog) money(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(c.thousandsSep)
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s%s%s", sign, b.String(), c.decimalSep, frac)
}

func (c *catalog) kind(k ledger.Kind) string {
	if k == ledger.Income {
		return c.kindIncome
	}
	return c.kindExpense
}

func (c *catalog) paymentLabel(m ledger.PaymentMethod) string {
	if label, ok := c.payment[m]; ok {
		return label
	}
	return string(m)
}

// confirmation renders the candidate and asks for a yes/no answer.
func (c *catalog) confirmation(p *model.PendingTransaction) string {
	ex := p.Extracted
	lines := []string{
		c.confirmHeader,
		fmt.Sprintf("• %s: %s", c.labelKind, c.kind(ex.Kind)),
		fmt.Sprintf("• %s: %s", c.labelAmount, c.money(ex.Amount)),
		fmt.Sprintf("• %s: %s", c.labelDescription, ex.Description),
		fmt.Sprintf("• %s: %s", c.labelCategory, p.Category.Name),
		fmt.Sprintf("• %s: %s", c.labelPayment, c.paymentLabel(ex.PaymentMethod)),
	}
	if p.Card != nil {
		lines = append(lines, fmt.Sprintf("• %s: %s", c.labelCard, p.Card.Name))
	}
	if ex.Installments != nil {
		parts := ledgersvc.InstallmentAmounts(ex.Amount, ex.Installments.Count)
		lines = append(lines, fmt.Sprintf("• %s: %dx %s", c.labelInstallments, ex.Installments.Count, c.money(parts[0])))
	}
	if ex.Share != nil && p.SharedWith != nil {
		line := fmt.Sprintf("• %s: %s", c.labelSharedWith, displayName(*p.SharedWith))
		if split, err := ledgersvc.SplitAmount(ex.Amount, ex.Share); err == nil {
			line += fmt.Sprintf(" (%s %s, %s %s)", c.yourPart, c.money(split.Self),
				fmt.Sprintf(c.theirs, firstName(*p.SharedWith)), c.money(split.Other))
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", c.confirmFooter)
	return strings.Join(lines, "\n")
}

// savedText acknowledges persisted records.
func (c *catalog) savedText(p *model.PendingTransaction, records []ledger.Transaction) string {
	if len(records) > 1 {
		return fmt.Sprintf(c.savedInstallments, len(records), c.money(records[0].TotalAmount), p.Extracted.Description)
	}
	return fmt.Sprintf(c.saved, p.Extracted.Description, c.money(p.Extracted.Amount))
}

// categoryList renders the user's categories grouped by kind.
func (c *catalog) categoryList(categories []ledger.Category) string {
	if len(categories) == 0 {
		return c.noneListed
	}

	var expenses, incomes []string
	for _, cat := range categories {
		if cat.Kind == ledger.Income {
			incomes = append(incomes, "• "+cat.Name)
		} else {
			expenses = append(expenses, "• "+cat.Name)
		}
	}

	lines := []string{c.categoriesHeader}
	if len(expenses) > 0 {
		lines = append(lines, "", "*"+c.expenseHeader+"*")
		lines = append(lines, expenses...)
	}
	if len(incomes) > 0 {
		lines = append(lines, "", "*"+c.incomeHeader+"*")
		lines = append(lines, incomes...)
	}
	return strings.Join(lines, "\n")
}

// errorText converts a pipeline error into the reply the user sees. detail
// fills the placeholder of the texts that list options.
func (c *catalog) errorText(err error, detail string) string {
	switch model.KindOf(err) {
	case model.ErrUserNotLinked:
		return c.userNotLinked
	case model.ErrExtractionFailed:
		switch model.ReasonOf(err) {
		case model.ReasonNoAmount:
			return c.noAmount
		case model.ReasonInvalidShare:
			return c.invalidShare
		}
		return c.lowConfidence
	case model.ErrNoCategories:
		return c.noCategories
	case model.ErrNoMatchingCategory:
		return fmt.Sprintf(c.noMatchingCategory, detail)
	case model.ErrCardNotResolved:
		if model.ReasonOf(err) == model.ReasonNoCards || detail == "" {
			return c.noCards
		}
		return fmt.Sprintf(c.cardNotResolved, detail)
	case model.ErrShareTargetNotFound:
		return c.shareTargetNotFound
	case model.ErrLimitReached:
		if model.ReasonOf(err) == model.ReasonSharedTierCap {
			return c.sharedTierCap
		}
		return c.whatsappFree
	case model.ErrPersistence:
		return c.persistence
	case model.ErrPendingExpired:
		return c.expired
	case model.ErrInvalidReply:
		if detail != "" {
			return detail
		}
		return c.invalidCorrection
	default:
		return c.internal
	}
}

func transcriptEcho(text string) string {
	return "🎤 \"" + text + "\""
}

func displayName(u ledger.User) string {
	if u.Name != "" {
		return u.Name
	}
	return "@" + u.Username
}

func firstName(u ledger.User) string {
	if name, _, _ := strings.Cut(strings.TrimSpace(u.Name), " "); name != "" {
		return name
	}
	return "@" + u.Username
}

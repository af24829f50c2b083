package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/topup/core/telegram/format"
	"github.com/m3rciful/topup/core/telegram/keyboard"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"

	tele "gopkg.in/telebot.v4"
)

var (
	textCatalog     = format.V2("Choose your operator:")
	textAmount      = format.V2("Enter the amount: From 1 to 1000 RUB")
	textLoading     = format.V2("⏳ Processing payment...")
	textSucceeded   = format.V2("✅ " + payment.MsgSucceeded)
	textCancelled   = format.V2("Payment cancelled. Use /start to choose an operator.")
	textNoSession   = format.V2("There is no payment in progress. Use /start to choose an operator.")
	textUnknown     = format.V2("Use /start to choose an operator.")
	textNoDocuments = format.V2("Files are not accepted here.")
	textNoAttempts  = format.V2("No payment attempts yet.")
	textAdminOnly   = "This command is available to the administrator only."
)

func catalogKeyboard(cat *catalog.Catalog) *tele.ReplyMarkup {
	ops := cat.List()
	btns := make([]keyboard.InlineBtn, 0, len(ops))
	for _, op := range ops {
		btns = append(btns, keyboard.InlineBtn{Text: op.Name, Unique: CallbackOperator, Data: op.ID})
	}
	return keyboard.InlineButtonsNPerRow(btns, 1)
}

func confirmKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "Pay", Unique: CallbackPay, Data: actionSubmit}},
		[]keyboard.InlineBtn{
			{Text: "Edit phone", Unique: CallbackPay, Data: actionPhone},
			{Text: "Edit amount", Unique: CallbackPay, Data: actionAmount},
		},
		[]keyboard.InlineBtn{{Text: "Cancel", Unique: CallbackPay, Data: actionCancel}},
	)
}

func bold(s string) string {
	return "*" + format.V2(s) + "*"
}

func phonePrompt(operator string) string {
	return bold(operator) + "\n" + format.V2("Enter the phone number: 7 (___) ___-__-__")
}

func orUnset(v string) string {
	if v == "" {
		return "not set"
	}
	return v
}

// summaryText shows the fields the pay button would submit.
func summaryText(snap payment.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(bold(snap.OperatorName))
	sb.WriteString("\n")
	sb.WriteString(format.V2("Phone: " + orUnset(snap.Phone)))
	sb.WriteString("\n")
	amount := orUnset(snap.Amount)
	if snap.Amount != "" {
		amount += " RUB"
	}
	sb.WriteString(format.V2("Amount: " + amount))
	return sb.String()
}

func failureText(a payment.Attempt) string {
	return format.V2("❌ "+a.Status.Message()) + "\n\n" + summaryText(payment.Snapshot{
		OperatorName: a.Operator,
		Phone:        a.Phone,
		Amount:       a.Amount,
	})
}

func attemptsText(entries []journal.Entry) string {
	if len(entries) == 0 {
		return textNoAttempts
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, bold(fmt.Sprintf("Last %d attempts", len(entries))))
	for _, e := range entries {
		line := fmt.Sprintf("%s %s %s %s %s",
			e.CreatedAt.Format("01-02 15:04:05"), e.Surface, e.Operator, e.PhoneMasked, orUnset(e.Amount))
		if e.ErrCode != "" {
			line += " " + e.ErrCode
		} else {
			line += " " + e.Status
		}
		lines = append(lines, format.V2(line))
	}
	return strings.Join(lines, "\n")
}

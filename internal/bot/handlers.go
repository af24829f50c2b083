package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/topup/core/telegram/helpers"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"

	tele "gopkg.in/telebot.v4"
)

func (b *Bot) onStart(c tele.Context) error {
	if user := c.Sender(); user != nil {
		b.fsm.ClearState(user.ID)
	}
	return tghelpers.SendMDV2(c, textCatalog, catalogKeyboard(b.catalog))
}

func (b *Bot) onCancel(c tele.Context) error {
	if user := c.Sender(); user != nil {
		b.fsm.Clear(user.ID)
	}
	chat := c.Chat()
	if chat == nil || !b.sessions.Close(chatKey(chat.ID)) {
		return tghelpers.SendMDV2(c, textNoSession)
	}
	return tghelpers.SendMDV2(c, textCancelled)
}

func (b *Bot) onAttempts(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	entries, err := b.journal.Recent(ctx, attemptsShown)
	if err != nil {
		return err
	}
	return tghelpers.SendMDV2(c, attemptsText(entries))
}

func (b *Bot) onAdminReject(c tele.Context) error {
	return tghelpers.SendText(c, textAdminOnly)
}

// onOperator opens a session for the chosen operator, replacing any session
// the chat already had, and asks for the phone number.
func (b *Bot) onOperator(c tele.Context) error {
	op, ok := b.catalog.Lookup(callbacks.CallbackPayload(c))
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown operator"})
	}
	user, chat := c.Sender(), c.Chat()
	if user == nil || chat == nil {
		return c.Respond()
	}
	b.open(chat.ID, user.ID, op)
	b.fsm.SetState(user.ID, StatePhone)
	if err := c.Respond(); err != nil {
		logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "callback.respond", slog.String("err", err.Error()))
	}
	return tghelpers.EditOrSendMDV2(c, phonePrompt(op.Name))
}

func (b *Bot) onPay(c tele.Context) error {
	user, chat := c.Sender(), c.Chat()
	if user == nil || chat == nil {
		return c.Respond()
	}
	sess, err := b.sessions.Get(chatKey(chat.ID))
	if err != nil {
		b.fsm.Clear(user.ID)
		_ = c.Respond()
		return tghelpers.SendMDV2(c, textNoSession)
	}

	switch callbacks.CallbackPayload(c) {
	case actionSubmit:
		b.fsm.ClearState(user.ID)
		if sess.Submit() {
			return c.Respond()
		}
		if sess.Status().Kind == payment.StatusSubmitting {
			return c.Respond(&tele.CallbackResponse{Text: "Payment is already processing"})
		}
		return c.Respond()
	case actionPhone:
		b.fsm.SetState(user.ID, StatePhone)
		_ = c.Respond()
		return tghelpers.SendMDV2(c, phonePrompt(sess.Operator().Name))
	case actionAmount:
		b.fsm.SetState(user.ID, StateAmount)
		_ = c.Respond()
		return tghelpers.SendMDV2(c, textAmount)
	case actionCancel:
		b.sessions.Close(sess.ID())
		b.fsm.Clear(user.ID)
		_ = c.Respond()
		return tghelpers.EditOrSendMDV2(c, textCatalog, catalogKeyboard(b.catalog))
	}
	return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
}

// onPhoneInput applies the text as the phone field. The amount is asked next
// unless it is already filled.
func (b *Bot) onPhoneInput(c tele.Context) error {
	sess, ok := b.current(c)
	if !ok {
		return tghelpers.SendMDV2(c, textNoSession)
	}
	sess.PhoneInput(c.Text())
	snap := sess.Snapshot()
	if snap.Amount == "" {
		b.fsm.SetState(c.Sender().ID, StateAmount)
		return tghelpers.SendMDV2(c, textAmount)
	}
	b.fsm.ClearState(c.Sender().ID)
	return tghelpers.SendMDV2(c, summaryText(snap), confirmKeyboard())
}

func (b *Bot) onAmountInput(c tele.Context) error {
	sess, ok := b.current(c)
	if !ok {
		return tghelpers.SendMDV2(c, textNoSession)
	}
	sess.AmountInput(c.Text())
	b.fsm.ClearState(c.Sender().ID)
	return tghelpers.SendMDV2(c, summaryText(sess.Snapshot()), confirmKeyboard())
}

// current returns the chat's session; a missing one also ends the conversation.
func (b *Bot) current(c tele.Context) (*payment.Session, bool) {
	chat := c.Chat()
	if chat == nil {
		return nil, false
	}
	sess, err := b.sessions.Get(chatKey(chat.ID))
	if err != nil {
		if user := c.Sender(); user != nil {
			b.fsm.Clear(user.ID)
		}
		return nil, false
	}
	return sess, true
}

// open starts the chat session. Status changes are pushed to the chat from
// the session's timers, and navigation back to the list re-sends it.
func (b *Bot) open(chatID, userID int64, op catalog.Operator) *payment.Session {
	key := chatKey(chatID)
	to := tele.ChatID(chatID)
	ctx := logger.WithSession(logger.WithUpdateMeta(context.Background(), 0, userID, chatID), key)

	sess := b.sessions.Open(key, op.Name, op.Color,
		payment.WithAttemptHook(journal.Hook(b.journal, journal.SurfaceTelegram)),
		payment.WithAttemptHook(func(a payment.Attempt) { b.pushAttempt(ctx, to, a) }),
		payment.WithNavigator(payment.NavigatorFunc(func(string) {
			b.fsm.Clear(userID)
			b.push(ctx, to, textCatalog, catalogKeyboard(b.catalog))
		})),
	)

	var mu sync.Mutex
	last := payment.StatusIdle
	sess.Subscribe(func(snap payment.Snapshot) {
		mu.Lock()
		prev := last
		last = snap.Status
		mu.Unlock()
		if snap.Status == payment.StatusSubmitting && prev != payment.StatusSubmitting {
			b.push(ctx, to, textLoading)
		}
	})
	return sess
}

func (b *Bot) pushAttempt(ctx context.Context, to tele.Recipient, a payment.Attempt) {
	switch a.Status.Kind {
	case payment.StatusSucceeded:
		b.push(ctx, to, textSucceeded)
	case payment.StatusFailed:
		b.push(ctx, to, failureText(a), confirmKeyboard())
	}
}

func (b *Bot) push(ctx context.Context, to tele.Recipient, text string, markup ...*tele.ReplyMarkup) {
	if err := tghelpers.PushMDV2(ctx, b.pushAPI(), to, text, markup...); err != nil {
		logger.Warn(ctx, logger.CompTG, "push.fail", slog.String("err", err.Error()))
	}
}

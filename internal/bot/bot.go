// Package bot is the Telegram surface of the payment screen: the operator
// list as an inline keyboard, field input as a short conversation and the
// session status pushed back as messages.
package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	tg "github.com/m3rciful/topup/core/telegram"
	"github.com/m3rciful/topup/core/telegram/commands"
	tghelpers "github.com/m3rciful/topup/core/telegram/helpers"
	"github.com/m3rciful/topup/core/telegram/router"
	"github.com/m3rciful/topup/core/telegram/state"
	"github.com/m3rciful/topup/core/telegram/ui"
	"github.com/m3rciful/topup/internal/catalog"
	"github.com/m3rciful/topup/internal/journal"
	"github.com/m3rciful/topup/internal/payment"

	tele "gopkg.in/telebot.v4"
)

// Conversation states.
const (
	StatePhone  state.State = "payment.phone"
	StateAmount state.State = "payment.amount"
)

// Callback keys and pay actions.
const (
	CallbackOperator = "op"
	CallbackPay      = "pay"

	actionSubmit = "submit"
	actionPhone  = "phone"
	actionAmount = "amount"
	actionCancel = "cancel"
)

// attemptsShown bounds the /attempts listing.
const attemptsShown = 10

// Options wires the bot to the shared domain objects.
type Options struct {
	Catalog  *catalog.Catalog
	Sessions *payment.Registry
	Journal  journal.Recorder
	FSM      state.Manager
	AdminID  int64
}

// Bot owns the handlers. One payment session is kept per chat.
type Bot struct {
	catalog  *catalog.Catalog
	sessions *payment.Registry
	journal  journal.Recorder
	fsm      state.Manager
	adminID  int64

	mu  sync.RWMutex
	api tghelpers.API
}

var _ ui.FallbackProvider = (*Bot)(nil)

// New builds the bot handlers.
func New(opts Options) *Bot {
	if opts.Catalog == nil {
		opts.Catalog = catalog.MustDefault()
	}
	if opts.Sessions == nil {
		opts.Sessions = payment.NewRegistry()
	}
	if opts.Journal == nil {
		opts.Journal = journal.NewMemory(journal.MaxLimit)
	}
	if opts.FSM == nil {
		opts.FSM = state.NewMemoryManager()
	}
	return &Bot{
		catalog:  opts.Catalog,
		sessions: opts.Sessions,
		journal:  opts.Journal,
		fsm:      opts.FSM,
		adminID:  opts.AdminID,
	}
}

// Register adds the commands, callbacks and conversation handlers.
func (b *Bot) Register(reg *tg.Registry) error {
	if reg == nil {
		return errors.New("bot: nil registry")
	}
	errs := []error{
		reg.RegisterCommand("/start", commands.Command{
			Handler:     b.onStart,
			Description: "Choose an operator",
			Aliases:     []string{"operators"},
		}),
		reg.RegisterCommand("/cancel", commands.Command{
			Handler:     b.onCancel,
			Description: "Cancel the current payment",
		}),
		reg.RegisterCommand("/attempts", commands.Command{
			Handler:     b.onAttempts,
			Description: "Recent payment attempts",
			AdminOnly:   true,
		}),
		reg.RegisterCallback(CallbackOperator, b.onOperator),
		reg.RegisterCallback(CallbackPay, b.onPay),
	}
	reg.SetCallbackNotFound(b.UnknownCallback())

	b.fsm.Handle(StatePhone, b.onPhoneInput)
	b.fsm.Handle(StateAmount, b.onAmountInput)
	return errors.Join(errs...)
}

// Routes binds the bot API for pushes and returns every route.
func (b *Bot) Routes(rt tg.Runtime) []tg.Route {
	if rt.Bot != nil {
		b.Bind(rt.Bot)
	}
	routes := router.CommandRoutes(rt.Registry, router.CommandRouteOptions{
		AdminID:       b.adminID,
		OnAdminReject: b.onAdminReject,
	})
	routes = append(routes, router.CallbackRoute(rt.Registry, router.CallbackOptions{}))
	return append(routes, router.TextRoutes(b.fsm, rt.Registry, router.TextOptions{
		UnknownText:     b.UnknownText(),
		UnknownDocument: b.UnknownDocument(),
	})...)
}

// Bind sets the API used for messages sent outside of an update.
func (b *Bot) Bind(api tghelpers.API) {
	b.mu.Lock()
	b.api = api
	b.mu.Unlock()
}

// Stop discards every chat session.
func (b *Bot) Stop(context.Context, tg.Runtime) error {
	b.sessions.CloseAll()
	return nil
}

func (b *Bot) pushAPI() tghelpers.API {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

// UnknownText answers text outside of a conversation.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMDV2(c, textUnknown)
	}
}

// UnknownDocument answers files, which the bot never expects.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMDV2(c, textNoDocuments)
	}
}

// UnknownCallback answers stale or foreign buttons.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}

func chatKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// OnLimited answers updates dropped by the rate limiter.
func (b *Bot) OnLimited() tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Callback() != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Too many requests, slow down"})
		}
		return tghelpers.SendText(c, "Too many requests, slow down.")
	}
}

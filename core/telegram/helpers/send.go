package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/topup/core/logger"
	"github.com/m3rciful/topup/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// API is the part of *tele.Bot used to send outside of an update.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
// With no dispatcher set, sends run inline.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func sendAsync(ctx context.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, logger.CompTGSender, "queue.fallback",
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends text to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	return sendAsync(BuildContext(c), "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendMDV2 sends a MarkdownV2 message with optional reply markup.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return SendText(c, text, mdV2(markup))
}

// EditOrSendMDV2 edits the callback message or sends a new one.
func EditOrSendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := mdV2(markup)
	return sendAsync(BuildContext(c), "send.edit_or_send", "editMessageText", func() error {
		return c.EditOrSend(text, opts)
	})
}

// PushMDV2 sends a MarkdownV2 message to a chat outside of an update, such as
// from a timer. ctx carries the log fields of the job.
func PushMDV2(ctx context.Context, api API, to tele.Recipient, text string, markup ...*tele.ReplyMarkup) error {
	if api == nil || to == nil {
		return errors.New("telegram helpers: push without api or recipient")
	}
	opts := mdV2(markup)
	return sendAsync(ctx, "push.text", "sendMessage", func() error {
		_, err := api.Send(to, text, opts)
		return err
	})
}

func mdV2(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}

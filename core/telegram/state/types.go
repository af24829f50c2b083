// Package state is a per-user conversation state machine for Telegram bots.
// Each state may have a handler that receives the user's free-text input.
package state

import tele "gopkg.in/telebot.v4"

// State identifies a step of a conversation.
type State string

// StateIdle means no conversation is active.
const StateIdle State = "idle"

// Session stores the conversation state and scratch values of one user.
type Session struct {
	State    State
	TempData map[string]any
}

// Manager tracks conversation state per user and dispatches input to the
// handler of the current state.
type Manager interface {
	Get(userID int64) Session
	SetState(userID int64, st State)
	GetState(userID int64) State
	ClearState(userID int64)
	Clear(userID int64)

	SetTemp(userID int64, key string, value any)
	GetTemp(userID int64, key string) (any, bool)

	Handle(st State, h tele.HandlerFunc)
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

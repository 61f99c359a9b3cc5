package types

import (
	"context"
)

type Session struct {
	Token      string `json:"token" db:"token" redis:"token"`
	UserID     string `json:"user_id" db:"user_id" redis:"user_id"`
	ActiveUser string `json:"activeUser" db:"active_user" redis:"active_user"`
}

type SessionEventKind string

const (
	SessionEventSet     SessionEventKind = "set"
	SessionEventCleared SessionEventKind = "cleared"
)

type SessionEvent struct {
	ID      string
	Kind    SessionEventKind
	Session *Session
}

type SessionListener func(event SessionEvent)

type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, session *Session) error
	Clear(ctx context.Context, id string) error
	Subscribe(listener SessionListener) (unsubscribe func())
}

type SessionManager interface {
	LifecycleManager
	SessionStore
	Ping(ctx context.Context) error
}

// SessionBackend persists session records; the manager layers events on top.
type SessionBackend interface {
	LifecycleManager
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, id string, session *Session) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type SessionBackendCreator func(ctx context.Context, config interface{}, logger Logger) (SessionBackend, error)

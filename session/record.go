package session

import (
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-food-admin/types"
)

// Record is the persisted shape of a session shared by all backends.
type Record struct {
	ID         string `json:"id" db:"id" redis:"-"`
	Token      string `json:"token" db:"token" redis:"token"`
	UserID     string `json:"user_id" db:"user_id" redis:"user_id"`
	ActiveUser string `json:"active_user" db:"active_user" redis:"active_user"`
	UpdatedAt  int64  `json:"updated_at" db:"updated_at" redis:"updated_at"`
}

func NewRecord(id string, session *types.Session) Record {
	return Record{
		ID:         id,
		Token:      session.Token,
		UserID:     session.UserID,
		ActiveUser: session.ActiveUser,
		UpdatedAt:  time.Now().UnixNano(),
	}
}

func (r Record) Session() *types.Session {
	return &types.Session{
		Token:      r.Token,
		UserID:     r.UserID,
		ActiveUser: r.ActiveUser,
	}
}

func (r Record) Map() map[string]interface{} {
	return map[string]interface{}{
		"id":          r.ID,
		"token":       r.Token,
		"user_id":     r.UserID,
		"active_user": r.ActiveUser,
		"updated_at":  r.UpdatedAt,
	}
}

type lifecycle struct {
	state atomic.Value
}

func (l *lifecycle) init() {
	l.state.Store(StateStopped)
}

func (l *lifecycle) start(open func() error) error {
	if !l.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if open != nil {
		if err := open(); err != nil {
			l.state.Store(StateStopped)
			return err
		}
	}

	l.state.Store(StateRunning)
	return nil
}

func (l *lifecycle) stop(closeFn func() error) error {
	if !l.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer l.state.Store(StateStopped)

	if closeFn != nil {
		return closeFn()
	}
	return nil
}

func (l *lifecycle) IsRunning() bool {
	return l.state.Load().(State) == StateRunning
}

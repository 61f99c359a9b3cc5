package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type SQLiteConfig struct {
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`
}

type SQLiteBackend struct {
	lifecycle
	ctx    context.Context
	db     *sqlx.DB
	config *SQLiteConfig
	logger types.Logger
}

func NewSQLiteBackend(ctx context.Context, config interface{}, logger types.Logger) (*SQLiteBackend, error) {
	cfg := &SQLiteConfig{}
	if config != nil {
		if err := utils.UnmarshalConfig(config, cfg); err != nil {
			return nil, types.WrapError(err, "failed to parse sqlite session config")
		}
	}

	if cfg.DSN == "" {
		cfg.DSN = "file:sessions.db?cache=shared"
	}
	if cfg.Table == "" {
		cfg.Table = "sessions"
	}

	b := &SQLiteBackend{
		ctx:    ctx,
		config: cfg,
		logger: logger,
	}
	b.init()
	return b, nil
}

func (s *SQLiteBackend) Start() error {
	return s.start(func() error {
		db, err := sqlx.Connect("sqlite3", s.config.DSN)
		if err != nil {
			return types.WrapError(err, "failed to open sqlite")
		}

		schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			active_user TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`, s.config.Table)

		if _, err = db.ExecContext(s.ctx, schema); err != nil {
			_ = db.Close()
			return types.WrapError(err, "failed to create sessions table")
		}

		s.db = db
		s.logger.Info("SQLite session backend started", zap.String("table", s.config.Table))
		return nil
	})
}

func (s *SQLiteBackend) Stop() error {
	return s.stop(func() error {
		return s.db.Close()
	})
}

func (s *SQLiteBackend) Load(ctx context.Context, id string) (*types.Session, error) {
	if !s.IsRunning() {
		return nil, types.ErrSessionStoreStopped
	}

	var record Record
	query := fmt.Sprintf("SELECT id, token, user_id, active_user, updated_at FROM %s WHERE id = ?", s.config.Table)
	if err := s.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, types.Errorf(types.ErrSessionStoreFailed, "select session: %v", err)
	}

	return record.Session(), nil
}

func (s *SQLiteBackend) Save(ctx context.Context, id string, session *types.Session) error {
	if !s.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, token, user_id, active_user, updated_at)
		VALUES (:id, :token, :user_id, :active_user, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			active_user = excluded.active_user,
			updated_at = excluded.updated_at`, s.config.Table)

	if _, err := s.db.NamedExecContext(ctx, query, NewRecord(id, session)); err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "upsert session: %v", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, id string) error {
	if !s.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.config.Table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "delete session: %v", err)
	}
	return nil
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if !s.IsRunning() {
		return types.ErrSessionStoreStopped
	}
	return s.db.PingContext(ctx)
}

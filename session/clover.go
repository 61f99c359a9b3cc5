package session

import (
	"context"
	"sync"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type CloverConfig struct {
	Path       string `json:"path" yaml:"path"`
	Collection string `json:"collection" yaml:"collection"`
}

// CloverBackend stores one document per session id in an embedded clover database.
type CloverBackend struct {
	lifecycle
	db     *clover.DB
	config *CloverConfig
	logger types.Logger
	mu     sync.Mutex
}

func NewCloverBackend(config interface{}, logger types.Logger) (*CloverBackend, error) {
	cfg := &CloverConfig{}
	if config != nil {
		if err := utils.UnmarshalConfig(config, cfg); err != nil {
			return nil, types.WrapError(err, "failed to parse clover session config")
		}
	}

	if cfg.Path == "" {
		cfg.Path = "./data/sessions"
	}
	if cfg.Collection == "" {
		cfg.Collection = "sessions"
	}

	b := &CloverBackend{
		config: cfg,
		logger: logger,
	}
	b.init()
	return b, nil
}

func (c *CloverBackend) Start() error {
	return c.start(func() error {
		db, err := clover.Open(c.config.Path)
		if err != nil {
			return types.WrapError(err, "failed to open CloverDB")
		}

		exists, err := db.HasCollection(c.config.Collection)
		if err != nil {
			_ = db.Close()
			return types.WrapError(err, "failed to check collection existence")
		}

		if !exists {
			if err = db.CreateCollection(c.config.Collection); err != nil {
				_ = db.Close()
				return types.WrapError(err, "failed to create collection")
			}
		}

		c.db = db
		c.logger.Info("Clover session backend started", zap.String("path", c.config.Path))
		return nil
	})
}

func (c *CloverBackend) Stop() error {
	return c.stop(func() error {
		if err := c.db.Close(); err != nil {
			return types.WrapError(err, "failed to close CloverDB")
		}
		return nil
	})
}

func (c *CloverBackend) Load(_ context.Context, id string) (*types.Session, error) {
	if !c.IsRunning() {
		return nil, types.ErrSessionStoreStopped
	}

	docs, err := c.byID(id).FindAll()
	if err != nil {
		return nil, types.Errorf(types.ErrSessionStoreFailed, "find session: %v", err)
	}
	if len(docs) == 0 {
		return nil, types.ErrSessionNotFound
	}

	fields := make(map[string]interface{})
	if err = docs[0].Unmarshal(&fields); err != nil {
		return nil, types.Errorf(types.ErrSessionStoreFailed, "decode session: %v", err)
	}

	return &types.Session{
		Token:      stringField(fields, "token"),
		UserID:     stringField(fields, "user_id"),
		ActiveUser: stringField(fields, "active_user"),
	}, nil
}

func (c *CloverBackend) Save(_ context.Context, id string, session *types.Session) error {
	if !c.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fields := NewRecord(id, session).Map()

	count, err := c.byID(id).Count()
	if err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "count sessions: %v", err)
	}

	if count > 0 {
		if err = c.byID(id).Update(fields); err != nil {
			return types.Errorf(types.ErrSessionStoreFailed, "update session: %v", err)
		}
		return nil
	}

	doc := clover.NewDocument()
	for key, value := range fields {
		doc.Set(key, value)
	}

	if err = c.db.Insert(c.config.Collection, doc); err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "insert session: %v", err)
	}

	return nil
}

func (c *CloverBackend) Delete(_ context.Context, id string) error {
	if !c.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.byID(id).Delete(); err != nil {
		return types.Errorf(types.ErrSessionStoreFailed, "delete session: %v", err)
	}
	return nil
}

func (c *CloverBackend) Ping(_ context.Context) error {
	if !c.IsRunning() {
		return types.ErrSessionStoreStopped
	}

	_, err := c.db.HasCollection(c.config.Collection)
	return err
}

func (c *CloverBackend) byID(id string) *clover.Query {
	return c.db.Query(c.config.Collection).Where(clover.Field("id").Eq(id))
}

func stringField(fields map[string]interface{}, key string) string {
	if value, ok := fields[key].(string); ok {
		return value
	}
	return ""
}

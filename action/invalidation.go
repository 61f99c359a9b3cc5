package action

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

// Bridge keeps the query caches of several admin instances coherent: local
// mutations are published, remote ones invalidate the local cache. Remote
// invalidations are not republished because QueryCache.Invalidate does not
// notify mutation listeners.
type Bridge struct {
	broker      types.ActionBroker
	cache       types.QueryCache
	logger      types.Logger
	unsubscribe func()
}

func NewBridge(broker types.ActionBroker, cache types.QueryCache, logger types.Logger) *Bridge {
	return &Bridge{broker: broker, cache: cache, logger: logger}
}

// Attach must run before the broker starts so no remote message is missed.
func (b *Bridge) Attach() error {
	if err := b.broker.Subscribe(types.ActionCacheInvalidate, b.handle); err != nil {
		return types.WrapError(err, "failed to subscribe to cache invalidations")
	}

	b.unsubscribe = b.cache.OnMutation(b.publish)
	return nil
}

func (b *Bridge) Detach() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	_ = b.broker.Unsubscribe(types.ActionCacheInvalidate)
}

func (b *Bridge) publish(endpoint string, tags []types.Tag) {
	if len(tags) == 0 {
		return
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.String())
	}

	err := b.broker.Publish(types.ActionCacheInvalidate, types.InvalidatePayload{Endpoint: endpoint, Tags: names})
	if err != nil {
		b.logger.Warn("Failed to publish cache invalidation",
			zap.String("endpoint", endpoint),
			zap.Strings("tags", names),
			zap.Error(err))
	}
}

func (b *Bridge) handle(message *types.ActionMessage) error {
	payload, err := decodePayload(message.Payload)
	if err != nil {
		return err
	}

	tags := make([]types.Tag, 0, len(payload.Tags))
	for _, name := range payload.Tags {
		tag, ok := types.ParseTag(name)
		if !ok {
			b.logger.Warn("Unknown tag in remote invalidation", zap.String("tag", name))
			continue
		}
		tags = append(tags, tag)
	}

	if len(tags) == 0 {
		return nil
	}

	touched := b.cache.Invalidate(tags...)
	b.logger.Debug("Applied remote cache invalidation",
		zap.String("endpoint", payload.Endpoint),
		zap.String("source", message.Source),
		zap.Int("entries", touched))
	return nil
}

// decodePayload accepts the decoded JSON object a broker hands over as well
// as an InvalidatePayload passed in process.
func decodePayload(raw interface{}) (*types.InvalidatePayload, error) {
	switch p := raw.(type) {
	case types.InvalidatePayload:
		return &p, nil
	case *types.InvalidatePayload:
		return p, nil
	}

	data, err := utils.Marshal(raw)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode invalidation payload")
	}

	var payload types.InvalidatePayload
	if err := utils.Unmarshal(data, &payload); err != nil {
		return nil, types.WrapError(err, "failed to decode invalidation payload")
	}
	return &payload, nil
}

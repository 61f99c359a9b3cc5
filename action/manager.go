// Package action fans cache invalidations out to other instances of the
// admin over a message broker.
package action

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-food-admin/types"
)

const TypeWebSocket = "websocket"

var customActionCreators = sync.Map{}

func RegisterActionBroker(name string, creator types.ActionBrokerCreator) {
	customActionCreators.Store(name, creator)
}

// NewActionBroker returns ErrActionIsDisabled when actions are switched off.
func NewActionBroker(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.ActionBroker, error) {
	actionsConfig := config.GetConfig().Actions
	if actionsConfig == nil || !actionsConfig.Enabled {
		return nil, types.ErrActionIsDisabled
	}

	switch actionsConfig.Type {
	case TypeWebSocket, "":
		broker, err := NewWebSocketBroker(ctx, actionsConfig, logger, metrics)
		if err != nil {
			return nil, err
		}
		return broker, nil
	default:
		creator, ok := customActionCreators.Load(actionsConfig.Type)
		if !ok {
			return nil, types.Errorf(types.ErrActionTypeUnknown, "type: %s", actionsConfig.Type)
		}
		return creator.(types.ActionBrokerCreator)(actionsConfig.Config)
	}
}

package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type entry struct {
	key         string
	tags        []types.Tag
	fetch       types.Fetcher
	state       types.QueryState
	subscribers map[*Subscription]struct{}
	generation  uint64
	inflight    bool
	stale       bool
	cancel      context.CancelFunc
	fetchedAt   time.Time
	releasedAt  time.Time
}

func newEntry(key string, tags []types.Tag, fetch types.Fetcher) *entry {
	return &entry{
		key:         key,
		tags:        tags,
		fetch:       fetch,
		state:       types.QueryState{Status: types.QueryStatusIdle},
		subscribers: make(map[*Subscription]struct{}),
	}
}

func (e *entry) fresh(now time.Time, maxAge time.Duration) bool {
	if e.stale || e.state.Status != types.QueryStatusReady {
		return false
	}
	return maxAge <= 0 || now.Sub(e.fetchedAt) < maxAge
}

func (e *entry) publish(state types.QueryState) {
	e.state = state
	for sub := range e.subscribers {
		sub.deliver(state)
	}
}

func (e *entry) addTags(tags []types.Tag) []types.Tag {
	var added []types.Tag
	for _, tag := range tags {
		if !hasTag(e.tags, tag) {
			e.tags = append(e.tags, tag)
			added = append(added, tag)
		}
	}
	return added
}

func hasTag(tags []types.Tag, tag types.Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// BuildKey is endpoint(canonical-args). Equal args always give equal keys.
func BuildKey(endpoint string, args interface{}) (string, error) {
	if endpoint == "" {
		return "", types.ErrCacheKeyEmpty
	}

	encoded, err := utils.CanonicalJSON(args)
	if err != nil {
		return "", types.Errorf(types.ErrCacheOperationFailed, "encode args for %s: %v", endpoint, err)
	}

	return endpoint + "(" + encoded + ")", nil
}

package types

import (
	"context"
	"strings"
	"time"
)

// Tag groups cached reads that a mutation may invalidate. The set is closed.
type Tag uint8

const (
	TagFoods Tag = iota + 1
)

var tagNames = map[Tag]string{
	TagFoods: "Foods",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "Unknown"
}

func ParseTag(name string) (Tag, bool) {
	for tag, tagName := range tagNames {
		if strings.EqualFold(tagName, name) {
			return tag, true
		}
	}
	return 0, false
}

type QueryStatus string

const (
	QueryStatusIdle    QueryStatus = "idle"
	QueryStatusPending QueryStatus = "pending"
	QueryStatusReady   QueryStatus = "ready"
	QueryStatusError   QueryStatus = "error"
)

type QueryState struct {
	Status    QueryStatus
	Data      interface{}
	Err       error
	UpdatedAt time.Time
}

func (s QueryState) IsSettled() bool {
	return s.Status == QueryStatusReady || s.Status == QueryStatusError
}

func (s QueryState) IsLoading() bool {
	return s.Status == QueryStatusPending
}

type Fetcher func(ctx context.Context) (interface{}, error)

type QueryRequest struct {
	Endpoint string
	Args     interface{}
	Tags     []Tag
	Skip     bool
	Fetch    Fetcher
}

type MutationRequest struct {
	Endpoint    string
	Invalidates []Tag
	Do          Fetcher
}

type QuerySubscription interface {
	Key() string
	State() QueryState
	Updates() <-chan QueryState
	Wait(ctx context.Context) (QueryState, error)
	Refetch()
	Unsubscribe()
}

type MutationListener func(endpoint string, invalidated []Tag)

type QueryCache interface {
	LifecycleManager
	Query(ctx context.Context, req QueryRequest) QuerySubscription
	Mutate(ctx context.Context, req MutationRequest) QueryState
	Invalidate(tags ...Tag) int
	OnMutation(listener MutationListener) (unsubscribe func())
	Sweep() int
	Len() int
}

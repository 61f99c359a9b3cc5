package api

import (
	"context"

	"github.com/saiset-co/sai-food-admin/types"
)

// Result is a settled or in-progress outcome with typed data.
type Result[T any] struct {
	Status types.QueryStatus `json:"status"`
	Data   T                 `json:"data"`
	Err    *types.APIError   `json:"error,omitempty"`
}

func (r Result[T]) IsLoading() bool {
	return r.Status == types.QueryStatusPending
}

func (r Result[T]) IsSuccess() bool {
	return r.Status == types.QueryStatusReady
}

// Unwrap returns the data of a ready result or its *types.APIError.
func Unwrap[T any](r Result[T]) (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Data, nil
}

func resultFrom[T any](state types.QueryState) Result[T] {
	result := Result[T]{Status: state.Status}

	if data, ok := state.Data.(T); ok {
		result.Data = data
	}

	if state.Err != nil {
		apiErr, ok := types.AsAPIError(state.Err)
		if !ok {
			apiErr = &types.APIError{
				Kind:    types.APIErrorNetwork,
				Message: types.MessageNetworkFailure,
				Cause:   state.Err,
			}
		}
		result.Err = apiErr
	}

	return result
}

// Query is a typed handle on a cache subscription.
type Query[T any] struct {
	sub types.QuerySubscription
}

func newQuery[T any](sub types.QuerySubscription) *Query[T] {
	return &Query[T]{sub: sub}
}

func (q *Query[T]) Key() string {
	return q.sub.Key()
}

func (q *Query[T]) State() Result[T] {
	return resultFrom[T](q.sub.State())
}

// Wait blocks until the query settles. If ctx ends first the current,
// possibly pending, state is returned without an error.
func (q *Query[T]) Wait(ctx context.Context) Result[T] {
	state, _ := q.sub.Wait(ctx)
	return resultFrom[T](state)
}

func (q *Query[T]) Updates() <-chan types.QueryState {
	return q.sub.Updates()
}

func (q *Query[T]) Refetch() {
	q.sub.Refetch()
}

func (q *Query[T]) Unsubscribe() {
	q.sub.Unsubscribe()
}

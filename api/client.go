package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/client"
	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

var shape = validator.New(validator.WithRequiredStructEnabled())

// Doer is the transport the endpoints are sent through.
type Doer interface {
	Do(ctx context.Context, req *client.Request) (*client.Response, error)
}

type QueryOptions struct {
	Skip  bool
	Token string
}

// Client exposes the remote food API as cached queries and mutations.
type Client struct {
	http   Doer
	cache  types.QueryCache
	logger types.Logger
}

func NewClient(transport Doer, cache types.QueryCache, logger types.Logger) *Client {
	return &Client{
		http:   transport,
		cache:  cache,
		logger: logger,
	}
}

func (c *Client) GetFoods(ctx context.Context, opts QueryOptions) *Query[[]Food] {
	endpoint := endpoints[EndpointGetFoods]
	return query[[]Food](ctx, c, endpoint, nil, nil, opts)
}

func (c *Client) GetFoodByID(ctx context.Context, id string, opts QueryOptions) *Query[Food] {
	endpoint := endpoints[EndpointGetFoodByID]
	return query[Food](ctx, c, endpoint, id, map[string]string{"id": id}, opts)
}

func (c *Client) GetFoodsByPriceRange(ctx context.Context, r PriceRange, opts QueryOptions) *Query[[]Food] {
	endpoint := endpoints[EndpointGetFoodsByPriceRange]
	params := map[string]string{"lo": formatPrice(r.Low), "hi": formatPrice(r.High)}
	return query[[]Food](ctx, c, endpoint, r, params, opts)
}

func (c *Client) SignIn(ctx context.Context, req SignInRequest) Result[SignInResponse] {
	endpoint := endpoints[EndpointSignIn]
	return mutate[SignInResponse](ctx, c, endpoint, nil, &client.Request{JSON: req})
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) Result[MessageResponse] {
	endpoint := endpoints[EndpointSignUp]
	return mutate[MessageResponse](ctx, c, endpoint, nil, &client.Request{JSON: req})
}

func (c *Client) AddFood(ctx context.Context, input FoodInput, token string) Result[MessageResponse] {
	endpoint := endpoints[EndpointAddFood]
	return mutate[MessageResponse](ctx, c, endpoint, nil, &client.Request{Form: foodForm(input), Token: token})
}

func (c *Client) UpdateFood(ctx context.Context, id string, input FoodInput, token string) Result[MessageResponse] {
	endpoint := endpoints[EndpointUpdateFood]
	return mutate[MessageResponse](ctx, c, endpoint, map[string]string{"id": id}, &client.Request{Form: foodForm(input), Token: token})
}

func (c *Client) DeleteFood(ctx context.Context, id string, token string) Result[MessageResponse] {
	endpoint := endpoints[EndpointDeleteFood]
	return mutate[MessageResponse](ctx, c, endpoint, map[string]string{"id": id}, &client.Request{Token: token})
}

func foodForm(input FoodInput) *client.MultipartForm {
	form := (&client.MultipartForm{}).
		AddField("food_name", input.Name).
		AddField("food_desc", input.Description).
		AddField("food_price", formatPrice(input.Price))

	if input.Image != nil {
		form.AddFile(client.FormFile{
			Field:       "food_image",
			Filename:    input.Image.Filename,
			ContentType: input.Image.ContentType,
			Data:        input.Image.Data,
		})
	}

	return form
}

func query[T any](ctx context.Context, c *Client, endpoint Endpoint, args interface{}, params map[string]string, opts QueryOptions) *Query[T] {
	req := types.QueryRequest{
		Endpoint: endpoint.Key,
		Args:     args,
		Tags:     endpoint.Provides,
		Skip:     opts.Skip,
	}

	if !opts.Skip {
		path, err := endpoint.Expand(params)
		if err != nil {
			argsErr := invalidArgs(err)
			req.Fetch = func(context.Context) (interface{}, error) { return nil, argsErr }
		} else {
			req.Fetch = func(fetchCtx context.Context) (interface{}, error) {
				return call[T](fetchCtx, c, endpoint, &client.Request{Path: path, Token: opts.Token})
			}
		}
	}

	return newQuery[T](c.cache.Query(ctx, req))
}

func mutate[T any](ctx context.Context, c *Client, endpoint Endpoint, params map[string]string, req *client.Request) Result[T] {
	path, err := endpoint.Expand(params)
	if err != nil {
		return Result[T]{Status: types.QueryStatusError, Err: invalidArgs(err)}
	}
	req.Path = path

	state := c.cache.Mutate(ctx, types.MutationRequest{
		Endpoint:    endpoint.Key,
		Invalidates: endpoint.Invalidates,
		Do: func(callCtx context.Context) (interface{}, error) {
			return call[T](callCtx, c, endpoint, req)
		},
	})

	return resultFrom[T](state)
}

// call performs one request and maps every failure onto *types.APIError.
// Context cancellation is returned as-is so callers can drop it silently.
func call[T any](ctx context.Context, c *Client, endpoint Endpoint, req *client.Request) (T, error) {
	var out T

	req.Method = endpoint.Method
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		c.logger.Warn("Food API unreachable",
			zap.String("endpoint", endpoint.Key),
			zap.Error(err))
		return out, &types.APIError{
			Kind:    types.APIErrorNetwork,
			Message: types.MessageNetworkFailure,
			Cause:   err,
		}
	}

	if !resp.IsSuccess() {
		return out, statusError(resp)
	}

	if out, err = decode[T](resp.Body); err != nil {
		c.logger.Warn("Food API returned an undecodable body",
			zap.String("endpoint", endpoint.Key),
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
		return out, &types.APIError{
			Kind:       types.APIErrorMalformed,
			StatusCode: resp.StatusCode,
			Message:    types.MessageMalformedResponse,
			Body:       string(resp.Body),
			Cause:      err,
		}
	}

	return out, nil
}

// decode rejects empty, null and misshapen bodies. Only a MessageResponse may
// arrive empty.
func decode[T any](body []byte) (T, error) {
	var out T

	if len(body) == 0 {
		if _, ok := any(out).(MessageResponse); ok {
			return out, nil
		}
		return out, types.NewErrorf("empty response body")
	}

	var decoded *T
	if err := utils.Unmarshal(body, &decoded); err != nil {
		return out, err
	}
	if decoded == nil {
		return out, types.NewErrorf("null response body")
	}

	if err := checkShape(*decoded); err != nil {
		return out, err
	}

	return *decoded, nil
}

func checkShape(value interface{}) error {
	switch v := value.(type) {
	case Food, SignInResponse:
		return shape.Struct(v)
	case []Food:
		for i := range v {
			if err := shape.Struct(v[i]); err != nil {
				return types.WrapError(err, fmt.Sprintf("item %d", i))
			}
		}
	}
	return nil
}

func invalidArgs(err error) *types.APIError {
	return &types.APIError{
		Kind:    types.APIErrorServer,
		Message: err.Error(),
		Cause:   err,
	}
}

func statusError(resp *client.Response) *types.APIError {
	apiErr := &types.APIError{
		Kind:       types.APIErrorServer,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}

	if resp.StatusCode == http.StatusNotFound {
		apiErr.Kind = types.APIErrorNotFound
	}

	var body errorBody
	if err := utils.Unmarshal(resp.Body, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = fmt.Sprintf(types.MessageRequestFailed, resp.StatusCode)
	}

	return apiErr
}

// ServerMessage returns the message the API put in an error body, or "" when
// the body carried none.
func ServerMessage(err *types.APIError) string {
	if err == nil || err.Body == "" {
		return ""
	}

	var body errorBody
	if utils.Unmarshal([]byte(err.Body), &body) != nil {
		return ""
	}
	return body.Message
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/cache"
	"github.com/saiset-co/sai-food-admin/client"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/types"
)

type fakeAPI struct {
	mu        sync.Mutex
	foods     []Food
	listCalls atomic.Int32
	lastBody  map[string]interface{}
	lastForm  map[string]string
	hasImage  bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/foods":
		f.listCalls.Add(1)
		_ = json.NewEncoder(w).Encode(f.foods)
	case r.Method == http.MethodGet && r.URL.Path == "/api/foods/10/20.5":
		_ = json.NewEncoder(w).Encode(f.foods)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/food/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/food/")
		for _, food := range f.foods {
			if food.ID == id {
				_ = json.NewEncoder(w).Encode(food)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/api/food/")
		kept := f.foods[:0]
		for _, food := range f.foods {
			if food.ID != id {
				kept = append(kept, food)
			}
		}
		f.foods = kept
		_, _ = w.Write([]byte(`{"message":"Food deleted"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/food":
		_ = r.ParseMultipartForm(1 << 20)
		f.lastForm = map[string]string{}
		for key := range r.MultipartForm.Value {
			f.lastForm[key] = r.FormValue(key)
		}
		_, f.hasImage = r.MultipartForm.File["food_image"]
		if f.lastForm["food_name"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Name required"}`))
			return
		}
		f.foods = append(f.foods, Food{ID: "new", Name: f.lastForm["food_name"]})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"Food added"}`))
	case r.Method == http.MethodPut:
		_ = r.ParseMultipartForm(1 << 20)
		_, f.hasImage = r.MultipartForm.File["food_image"]
		_, _ = w.Write([]byte(`{}`))
	case r.URL.Path == "/api/user/signin" || r.URL.Path == "/api/user/signup":
		body, _ := io.ReadAll(r.Body)
		f.lastBody = map[string]interface{}{}
		_ = json.Unmarshal(body, &f.lastBody)
		_, _ = w.Write([]byte(`{"status":"success","token":"tok","user_id":"u1","activeUser":"Alice","message":"Welcome"}`))
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newTestAPI(t *testing.T, handler http.Handler) (*Client, *cache.QueryCache) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewNopLogger()
	transport := client.New(context.Background(), &types.APIConfig{BaseURL: server.URL, Timeout: 2 * time.Second}, log, nil)
	require.NoError(t, transport.Start())
	t.Cleanup(func() { _ = transport.Stop() })

	queryCache := cache.New(context.Background(), nil, log, nil)
	require.NoError(t, queryCache.Start())
	t.Cleanup(func() { _ = queryCache.Stop() })

	return NewClient(transport, queryCache, log), queryCache
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetFoods_DeleteInvalidatesList(t *testing.T) {
	fake := &fakeAPI{foods: []Food{{ID: "1", Name: "Pizza", Price: 9.5}}}
	api, _ := newTestAPI(t, fake)

	list := api.GetFoods(context.Background(), QueryOptions{})
	defer list.Unsubscribe()

	result := list.Wait(waitCtx(t))
	require.Nil(t, result.Err)
	assert.Equal(t, []Food{{ID: "1", Name: "Pizza", Price: 9.5}}, result.Data)

	again := api.GetFoods(context.Background(), QueryOptions{})
	assert.True(t, again.State().IsSuccess())
	again.Unsubscribe()
	assert.EqualValues(t, 1, fake.listCalls.Load())

	deleted := api.DeleteFood(context.Background(), "1", "")
	require.Nil(t, deleted.Err)
	assert.Equal(t, "Food deleted", deleted.Data.Message)

	assert.Eventually(t, func() bool {
		state := list.State()
		return state.IsSuccess() && len(state.Data) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, fake.listCalls.Load())
}

func TestAddFood_ServerErrorKeepsCache(t *testing.T) {
	fake := &fakeAPI{foods: []Food{}}
	api, _ := newTestAPI(t, fake)

	list := api.GetFoods(context.Background(), QueryOptions{})
	defer list.Unsubscribe()
	list.Wait(waitCtx(t))

	result := api.AddFood(context.Background(), FoodInput{Description: "long enough text", Price: 3}, "")
	require.NotNil(t, result.Err)
	assert.Equal(t, types.APIErrorServer, result.Err.Kind)
	assert.Equal(t, http.StatusBadRequest, result.Err.StatusCode)
	assert.Equal(t, "Name required", result.Err.Message)
	assert.Equal(t, "Name required", ServerMessage(result.Err))

	_, err := Unwrap(result)
	assert.EqualError(t, err, "Name required")

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, fake.listCalls.Load())
}

func TestAddFood_SendsMultipart(t *testing.T) {
	fake := &fakeAPI{}
	api, _ := newTestAPI(t, fake)

	result := api.AddFood(context.Background(), FoodInput{
		Name:        "Soup",
		Description: "Hot tomato soup",
		Price:       4.25,
		Image:       &Image{Filename: "soup.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
	}, "")
	require.Nil(t, result.Err)
	assert.Equal(t, "Food added", result.Data.Message)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, map[string]string{"food_name": "Soup", "food_desc": "Hot tomato soup", "food_price": "4.25"}, fake.lastForm)
	assert.True(t, fake.hasImage)
}

func TestUpdateFood_OmitsUnchangedImage(t *testing.T) {
	fake := &fakeAPI{}
	api, _ := newTestAPI(t, fake)

	result := api.UpdateFood(context.Background(), "1", FoodInput{Name: "Soup", Description: "Hot tomato soup", Price: 4}, "")
	require.Nil(t, result.Err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.False(t, fake.hasImage)
}

func TestGetFoodByID_NotFound(t *testing.T) {
	api, _ := newTestAPI(t, &fakeAPI{})

	q := api.GetFoodByID(context.Background(), "missing", QueryOptions{})
	defer q.Unsubscribe()

	result := q.Wait(waitCtx(t))
	require.NotNil(t, result.Err)
	assert.True(t, result.Err.IsNotFound())
	assert.Equal(t, "Request failed with status 404", result.Err.Message)
}

func TestGetFoodByID_Skip(t *testing.T) {
	api, queryCache := newTestAPI(t, &fakeAPI{})

	q := api.GetFoodByID(context.Background(), "", QueryOptions{Skip: true})
	assert.Equal(t, types.QueryStatusIdle, q.State().Status)
	assert.Equal(t, 0, queryCache.Len())
}

func TestGetFoodsByPriceRange(t *testing.T) {
	api, _ := newTestAPI(t, &fakeAPI{foods: []Food{{ID: "1"}}})

	q := api.GetFoodsByPriceRange(context.Background(), PriceRange{Low: 10, High: 20.5}, QueryOptions{})
	defer q.Unsubscribe()

	result := q.Wait(waitCtx(t))
	require.Nil(t, result.Err)
	assert.Len(t, result.Data, 1)
}

func TestMalformedResponse(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))

	q := api.GetFoods(context.Background(), QueryOptions{})
	defer q.Unsubscribe()

	result := q.Wait(waitCtx(t))
	require.NotNil(t, result.Err)
	assert.Equal(t, types.APIErrorMalformed, result.Err.Kind)
	assert.Equal(t, types.MessageMalformedResponse, result.Err.Message)
}

func TestMalformedResponse_RejectsEmptyAndMisshapenBodies(t *testing.T) {
	bodies := map[string]string{
		"empty":       ``,
		"null":        `null`,
		"wrong shape": `{"unexpected":true}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))

			q := api.GetFoodByID(context.Background(), "1", QueryOptions{})
			defer q.Unsubscribe()

			result := q.Wait(waitCtx(t))
			assert.Equal(t, types.QueryStatusError, result.Status)
			require.NotNil(t, result.Err)
			assert.Equal(t, types.APIErrorMalformed, result.Err.Kind)
			assert.Equal(t, Food{}, result.Data)
		})
	}

	lists := map[string]string{
		"null":            `null`,
		"item without id": `[{"_id":"1","food_name":"Pizza"},{"food_name":"Ghost"}]`,
	}

	for name, body := range lists {
		t.Run("list "+name, func(t *testing.T) {
			api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))

			q := api.GetFoods(context.Background(), QueryOptions{})
			defer q.Unsubscribe()

			result := q.Wait(waitCtx(t))
			require.NotNil(t, result.Err)
			assert.Equal(t, types.APIErrorMalformed, result.Err.Kind)
		})
	}
}

func TestMutation_AcceptsEmptyMessageBody(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	result := api.DeleteFood(context.Background(), "1", "tok")
	assert.Nil(t, result.Err)
	assert.True(t, result.IsSuccess())
}

func TestSignIn_EmptyBodyIsMalformed(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	result := api.SignIn(context.Background(), SignInRequest{Email: "a@b.co", Password: "x"})
	require.NotNil(t, result.Err)
	assert.Equal(t, types.APIErrorMalformed, result.Err.Kind)
}

func TestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	log := logger.NewNopLogger()
	transport := client.New(context.Background(), &types.APIConfig{BaseURL: url, Timeout: time.Second}, log, nil)
	require.NoError(t, transport.Start())
	defer transport.Stop()

	queryCache := cache.New(context.Background(), nil, log, nil)
	require.NoError(t, queryCache.Start())
	defer queryCache.Stop()

	result := NewClient(transport, queryCache, log).SignIn(context.Background(), SignInRequest{Email: "a@b.co", Password: "x"})
	require.NotNil(t, result.Err)
	assert.Equal(t, types.APIErrorNetwork, result.Err.Kind)
	assert.Equal(t, types.MessageNetworkFailure, result.Err.Message)
}

func TestSignUp_NeverSendsConfirmation(t *testing.T) {
	fake := &fakeAPI{}
	api, _ := newTestAPI(t, fake)

	result := api.SignUp(context.Background(), SignUpRequest{Name: "Al", Email: "a@b.co", Phone: "0123456789", Password: "Secret!12"})
	require.Nil(t, result.Err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, map[string]interface{}{"name": "Al", "email": "a@b.co", "phone": "0123456789", "password": "Secret!12"}, fake.lastBody)
}

func TestSignIn(t *testing.T) {
	api, _ := newTestAPI(t, &fakeAPI{})

	result := api.SignIn(context.Background(), SignInRequest{Email: "a@b.co", Password: "Secret!12"})
	resp, err := Unwrap(result)
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.Equal(t, SignInResponse{Status: "success", Token: "tok", UserID: "u1", ActiveUser: "Alice", Message: "Welcome"}, resp)
}

func TestLookup(t *testing.T) {
	endpoint, err := Lookup(EndpointUpdateFood)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, endpoint.Method)
	assert.Equal(t, []types.Tag{types.TagFoods}, endpoint.Invalidates)

	path, err := endpoint.Expand(map[string]string{"id": "a b"})
	require.NoError(t, err)
	assert.Equal(t, "/api/food/a%20b", path)

	_, err = endpoint.Expand(map[string]string{"id": ""})
	assert.ErrorIs(t, err, types.ErrEndpointArgsInvalid)

	_, err = Lookup("nope")
	assert.ErrorIs(t, err, types.ErrEndpointUnknown)
	assert.Len(t, Endpoints(), 8)
}

func TestServerMessage(t *testing.T) {
	assert.Empty(t, ServerMessage(nil))
	assert.Empty(t, ServerMessage(&types.APIError{Message: "Request failed with status 500"}))
	assert.Empty(t, ServerMessage(&types.APIError{Body: "TypeError: Cannot read property 'path' of undefined"}))
	assert.Equal(t, "Duplicate email", ServerMessage(&types.APIError{Body: `{"message":"Duplicate email"}`}))
}

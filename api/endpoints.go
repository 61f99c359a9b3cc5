package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	EndpointSignIn               = "signIn"
	EndpointSignUp               = "signUp"
	EndpointGetFoods             = "getFoods"
	EndpointGetFoodByID          = "getFoodById"
	EndpointAddFood              = "addFood"
	EndpointUpdateFood           = "updateFood"
	EndpointDeleteFood           = "deleteFood"
	EndpointGetFoodsByPriceRange = "getFoodsByPriceRange"
)

type Endpoint struct {
	Key         string
	Method      string
	Path        string
	Provides    []types.Tag
	Invalidates []types.Tag
}

var foods = []types.Tag{types.TagFoods}

var endpoints = map[string]Endpoint{
	EndpointSignIn:               {Key: EndpointSignIn, Method: http.MethodPost, Path: "/api/user/signin"},
	EndpointSignUp:               {Key: EndpointSignUp, Method: http.MethodPost, Path: "/api/user/signup"},
	EndpointGetFoods:             {Key: EndpointGetFoods, Method: http.MethodGet, Path: "/api/foods", Provides: foods},
	EndpointGetFoodByID:          {Key: EndpointGetFoodByID, Method: http.MethodGet, Path: "/api/food/{id}", Provides: foods},
	EndpointAddFood:              {Key: EndpointAddFood, Method: http.MethodPost, Path: "/api/food", Invalidates: foods},
	EndpointUpdateFood:           {Key: EndpointUpdateFood, Method: http.MethodPut, Path: "/api/food/{id}", Invalidates: foods},
	EndpointDeleteFood:           {Key: EndpointDeleteFood, Method: http.MethodDelete, Path: "/api/food/{id}", Invalidates: foods},
	EndpointGetFoodsByPriceRange: {Key: EndpointGetFoodsByPriceRange, Method: http.MethodGet, Path: "/api/foods/{lo}/{hi}", Provides: foods},
}

func Lookup(key string) (Endpoint, error) {
	endpoint, ok := endpoints[key]
	if !ok {
		return Endpoint{}, types.Errorf(types.ErrEndpointUnknown, "endpoint: %s", key)
	}
	return endpoint, nil
}

func Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		out = append(out, endpoint)
	}
	return out
}

// Expand fills {name} placeholders with escaped values.
func (e Endpoint) Expand(params map[string]string) (string, error) {
	path := e.Path
	for name, value := range params {
		if value == "" {
			return "", types.Errorf(types.ErrEndpointArgsInvalid, "%s: empty %s", e.Key, name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}

	if strings.Contains(path, "{") {
		return "", types.Errorf(types.ErrEndpointArgsInvalid, "%s: unfilled path %s", e.Key, path)
	}

	return path, nil
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

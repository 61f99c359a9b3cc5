package pages

import (
	"github.com/saiset-co/sai-food-admin/api"
	"github.com/saiset-co/sai-food-admin/dashboard"
	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/validation"
)

const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func success(message string) *Notice {
	return &Notice{Kind: NoticeSuccess, Message: message}
}

func failure(message string) *Notice {
	return &Notice{Kind: NoticeError, Message: message}
}

type Links struct {
	Login     string `json:"login"`
	Signup    string `json:"signup"`
	Dashboard string `json:"dashboard"`
	AddFood   string `json:"add_food"`
	Logout    string `json:"logout"`
}

func linksFor(routes guard.Routes) Links {
	return Links{
		Login:     routes.Login,
		Signup:    routes.Signup,
		Dashboard: guard.DashboardPath,
		AddFood:   guard.AddFoodPath,
		Logout:    guard.LogoutPath,
	}
}

type AuthView struct {
	Page   string                 `json:"page"`
	Notice *Notice                `json:"notice,omitempty"`
	Errors validation.FieldErrors `json:"errors,omitempty"`
	Values map[string]string      `json:"values,omitempty"`
	Links  Links                  `json:"links"`
}

type DashboardView struct {
	Greeting   string           `json:"greeting"`
	ActiveUser string           `json:"active_user"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
	Notice     *Notice          `json:"notice,omitempty"`
	Filter     dashboard.Filter `json:"filter"`
	Foods      []FoodItem       `json:"foods"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
	PrevURL    string           `json:"prev_url,omitempty"`
	NextURL    string           `json:"next_url,omitempty"`
	Links      Links            `json:"links"`
}

// FoodItem is a food as listed on the dashboard, with its edit and delete targets.
type FoodItem struct {
	api.Food
	EditURL   string `json:"edit_url"`
	DeleteURL string `json:"delete_url"`
}

type FoodView struct {
	Food    *api.Food              `json:"food,omitempty"`
	Loading bool                   `json:"loading"`
	Error   string                 `json:"error,omitempty"`
	Notice  *Notice                `json:"notice,omitempty"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
	Values  map[string]string      `json:"values,omitempty"`
	Links   Links                  `json:"links"`
}

package guard

import (
	"github.com/saiset-co/sai-food-admin/types"
)

type NotFoundPage struct {
	Heading     string `json:"heading"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
	ButtonLabel string `json:"button_label"`
	ButtonLink  string `json:"button_link"`
}

func (r Routes) NotFound(area types.RouteArea, path string) NotFoundPage {
	if area == types.AreaAuthenticated {
		return NotFoundPage{
			Heading:     "Dashboard Page Not Found",
			Description: "Sorry, this page does not exist in your dashboard.",
			Path:        path,
			ButtonLabel: "Go to Dashboard Home",
			ButtonLink:  r.AuthenticatedDefault(),
		}
	}

	return NotFoundPage{
		Heading:     "Authentication Error",
		Description: "Page not found. Please login or sign up.",
		Path:        path,
		ButtonLabel: "Back to Login",
		ButtonLink:  r.UnauthenticatedDefault(),
	}
}

package guard

import (
	"strings"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	LayoutClassic = "classic"
	LayoutRevised = "revised"

	DashboardPath = "/dashboard"
	FoodPath      = "/dashboard/food/:id"
	AddFoodPath   = "/dashboard/add-food"
	LogoutPath    = "/dashboard/logout"
)

// Routes is the navigation surface for one route layout.
type Routes struct {
	Login  string
	Signup string
}

func RoutesFor(layout string) Routes {
	if layout == LayoutRevised {
		return Routes{Login: "/log-in", Signup: "/sign-up"}
	}
	return Routes{Login: "/", Signup: "/signup"}
}

// UnauthenticatedDefault is where signed-out visitors are sent.
func (r Routes) UnauthenticatedDefault() string {
	return r.Login
}

func (r Routes) AuthenticatedDefault() string {
	return DashboardPath
}

func (r Routes) Unauthenticated() []string {
	return []string{r.Login, r.Signup}
}

func (r Routes) Authenticated() []string {
	return []string{DashboardPath, FoodPath, AddFoodPath}
}

// FoodURL fills the edit route for a concrete food id.
func FoodURL(id string) string {
	return strings.Replace(FoodPath, ":id", id, 1)
}

// AreaOf classifies an arbitrary path, known or not.
func AreaOf(path string) types.RouteArea {
	if path == DashboardPath || strings.HasPrefix(path, DashboardPath+"/") {
		return types.AreaAuthenticated
	}
	return types.AreaUnauthenticated
}

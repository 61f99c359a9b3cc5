package api

// Food is a food item as the remote API serves it.
type Food struct {
	ID          string  `json:"_id" validate:"required"`
	Name        string  `json:"food_name"`
	Description string  `json:"food_desc"`
	Price       float64 `json:"food_price"`
	Image       string  `json:"food_image"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Status     string `json:"status" validate:"required"`
	Token      string `json:"token"`
	UserID     string `json:"user_id"`
	ActiveUser string `json:"activeUser"`
	Message    string `json:"message"`
}

func (r SignInResponse) Succeeded() bool {
	return r.Status == "success"
}

// SignUpRequest never carries the confirmation password.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FoodInput is the multipart payload for add and update. A nil Image on
// update keeps the stored image.
type FoodInput struct {
	Name        string
	Description string
	Price       float64
	Image       *Image
}

type PriceRange struct {
	Low  float64 `json:"lo"`
	High float64 `json:"hi"`
}

type errorBody struct {
	Message string `json:"message"`
}

package dashboard

import (
	"strconv"
	"strings"
	"time"

	"github.com/saiset-co/sai-food-admin/api"
)

const PerPage = 3

// Filter narrows the food list. Nil bounds are unset.
type Filter struct {
	Search   string   `json:"search"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

// ParseFilter reads the dashboard query parameters. Bounds that are empty
// or not numbers are ignored.
func ParseFilter(search, minPrice, maxPrice string) Filter {
	return Filter{
		Search:   search,
		MinPrice: parseBound(minPrice),
		MaxPrice: parseBound(maxPrice),
	}
}

func parseBound(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}

func (f Filter) Apply(items []api.Food) []api.Food {
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]api.Food, 0, len(items))
	for _, item := range items {
		if needle != "" && !strings.Contains(strings.ToLower(item.Name), needle) {
			continue
		}
		if f.MinPrice != nil && item.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && item.Price > *f.MaxPrice {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Key identifies the filter for detecting changes between requests.
func (f Filter) Key() string {
	return f.Search + "|" + boundKey(f.MinPrice) + "|" + boundKey(f.MaxPrice)
}

func boundKey(b *float64) string {
	if b == nil {
		return ""
	}
	return strconv.FormatFloat(*b, 'f', -1, 64)
}

type Page struct {
	Items      []api.Food `json:"items"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	HasPrev    bool       `json:"has_prev"`
	HasNext    bool       `json:"has_next"`
}

// Paginate clamps page into [1, totalPages]. An empty list is page 1 of 0.
func Paginate(items []api.Food, page, perPage int) Page {
	if perPage <= 0 {
		perPage = PerPage
	}

	totalPages := (len(items) + perPage - 1) / perPage

	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return Page{
		Items:      items[start:end],
		Page:       page,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// ResolvePage returns 1 when the filter changed since the page was chosen.
func ResolvePage(requested int, current, previous Filter) int {
	if current.Key() != previous.Key() {
		return 1
	}
	return requested
}

func Greeting(now time.Time) string {
	switch hour := now.Hour(); {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

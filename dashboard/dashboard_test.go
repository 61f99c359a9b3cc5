package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-food-admin/api"
)

func menu() []api.Food {
	return []api.Food{
		{ID: "1", Name: "Margherita Pizza", Price: 9},
		{ID: "2", Name: "Pepperoni PIZZA", Price: 11},
		{ID: "3", Name: "Caesar Salad", Price: 7.5},
		{ID: "4", Name: "Tomato Soup", Price: 5},
		{ID: "5", Name: "Pizza Bianca", Price: 14},
	}
}

func ids(items []api.Food) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{"empty", ParseFilter("", "", ""), []string{"1", "2", "3", "4", "5"}},
		{"case insensitive trimmed search", ParseFilter("  pizza ", "", ""), []string{"1", "2", "5"}},
		{"min only", ParseFilter("", "9", ""), []string{"1", "2", "5"}},
		{"max only", ParseFilter("", "", "7.5"), []string{"3", "4"}},
		{"range and search", ParseFilter("pizza", "10", "12"), []string{"2"}},
		{"garbage bounds ignored", ParseFilter("", "abc", " "), []string{"1", "2", "3", "4", "5"}},
		{"no match", ParseFilter("sushi", "", ""), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(tt.filter.Apply(menu())))
		})
	}
}

func TestPaginate(t *testing.T) {
	items := menu()

	page := Paginate(items, 1, PerPage)
	assert.Equal(t, []string{"1", "2", "3"}, ids(page.Items))
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasPrev)
	assert.True(t, page.HasNext)

	page = Paginate(items, 2, PerPage)
	assert.Equal(t, []string{"4", "5"}, ids(page.Items))
	assert.True(t, page.HasPrev)
	assert.False(t, page.HasNext)

	page = Paginate(items, 9, PerPage)
	assert.Equal(t, 2, page.Page)

	page = Paginate(items, -1, 0)
	assert.Equal(t, 1, page.Page)

	empty := Paginate(nil, 3, PerPage)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 0, empty.TotalPages)
	assert.Empty(t, empty.Items)
	assert.False(t, empty.HasNext)
}

func TestResolvePage(t *testing.T) {
	previous := ParseFilter("pizza", "", "")
	assert.Equal(t, 2, ResolvePage(2, ParseFilter("pizza", "", ""), previous))
	assert.Equal(t, 1, ResolvePage(2, ParseFilter("pizza", "5", ""), previous))
	assert.Equal(t, 1, ResolvePage(2, ParseFilter("soup", "", ""), previous))
}

func TestGreeting(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Good morning", Greeting(day.Add(11*time.Hour+59*time.Minute)))
	assert.Equal(t, "Good afternoon", Greeting(day.Add(12*time.Hour)))
	assert.Equal(t, "Good afternoon", Greeting(day.Add(17*time.Hour)))
	assert.Equal(t, "Good evening", Greeting(day.Add(18*time.Hour)))
}

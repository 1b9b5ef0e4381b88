package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AYUSH1442006/nexi-backend/internal/model"
)

func TestScore_KnownScenario(t *testing.T) {
	// Рейтинг 4.5 → 27.0, навыки 1/1 → 25.0, цена min(100/80, 1.2)*20 → 24.0,
	// опыт 10*0.75 → 7.5, локации нет → 0. Итого 83.5.
	user := &model.User{
		Rating:         4.5,
		Skills:         []string{"plumbing"},
		TasksCompleted: 10,
	}
	task := &model.Task{
		BudgetCents:    10000,
		RequiredSkills: []string{"plumbing"},
	}
	bid := &model.Bid{AmountCents: 8000}

	assert.Equal(t, 83.5, Score(user, task, bid))
}

func TestScore_Bounds(t *testing.T) {
	tests := []struct {
		name string
		user *model.User
		task *model.Task
		bid  *model.Bid
	}{
		{
			name: "empty profile",
			user: &model.User{},
			task: &model.Task{},
			bid:  &model.Bid{},
		},
		{
			name: "maximal profile",
			user: &model.User{
				Rating:         5.0,
				Skills:         []string{"a", "b"},
				TasksCompleted: 100,
				Location:       &model.GeoLocation{Lat: 10, Lng: 20},
			},
			task: &model.Task{
				BudgetCents:    100000,
				RequiredSkills: []string{"a", "b"},
				Location:       &model.GeoLocation{Lat: 10.05, Lng: 20.05},
			},
			bid: &model.Bid{AmountCents: 100},
		},
		{
			name: "zero bid amount",
			user: &model.User{Rating: 3},
			task: &model.Task{BudgetCents: 5000},
			bid:  &model.Bid{AmountCents: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.user, tt.task, tt.bid)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
		})
	}
}

func TestScore_ClampedAtUpperBound(t *testing.T) {
	// Все слагаемые на максимуме: 30 + 25 + 24 + 15 + 10 = 104 до среза.
	user := &model.User{
		Rating:         5.0,
		Skills:         []string{"a", "b"},
		TasksCompleted: 100,
		Location:       &model.GeoLocation{Lat: 10, Lng: 20},
	}
	task := &model.Task{
		BudgetCents:    100000,
		RequiredSkills: []string{"a", "b"},
		Location:       &model.GeoLocation{Lat: 10.05, Lng: 20.05},
	}
	bid := &model.Bid{AmountCents: 100}

	assert.Equal(t, 100.0, Score(user, task, bid))
}

func TestScore_Deterministic(t *testing.T) {
	user := &model.User{
		Rating:         3.7,
		Skills:         []string{"painting", "cleaning"},
		TasksCompleted: 7,
		Location:       &model.GeoLocation{Lat: 55.75, Lng: 37.61},
	}
	task := &model.Task{
		BudgetCents:    25000,
		RequiredSkills: []string{"painting"},
		Location:       &model.GeoLocation{Lat: 55.76, Lng: 37.63},
	}
	bid := &model.Bid{AmountCents: 22000}

	first := Score(user, task, bid)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(user, task, bid))
	}
}

func TestScore_SkillMatchCaseSensitive(t *testing.T) {
	user := &model.User{Skills: []string{"Plumbing"}}
	task := &model.Task{RequiredSkills: []string{"plumbing"}}
	bid := &model.Bid{}

	assert.Equal(t, 0.0, Score(user, task, bid))
}

func TestScore_NoRequiredSkills(t *testing.T) {
	user := &model.User{Skills: []string{"plumbing"}}
	task := &model.Task{}
	bid := &model.Bid{}

	assert.Equal(t, 0.0, Score(user, task, bid))
}

func TestScore_PriceRatioCapped(t *testing.T) {
	// Ставка сильно ниже бюджета даёт тот же максимум, что и 1.2x.
	task := &model.Task{BudgetCents: 100000}
	cheap := Score(&model.User{}, task, &model.Bid{AmountCents: 100})
	fair := Score(&model.User{}, task, &model.Bid{AmountCents: 90000})

	assert.Equal(t, 24.0, cheap)
	assert.Less(t, fair, cheap)
}

func TestScore_ExperienceSaturates(t *testing.T) {
	twenty := Score(&model.User{TasksCompleted: 20}, &model.Task{}, &model.Bid{})
	hundred := Score(&model.User{TasksCompleted: 100}, &model.Task{}, &model.Bid{})

	assert.Equal(t, 15.0, twenty)
	assert.Equal(t, twenty, hundred)
}

func TestScore_LocationWindow(t *testing.T) {
	task := &model.Task{Location: &model.GeoLocation{Lat: 50.0, Lng: 30.0}}

	near := &model.User{Location: &model.GeoLocation{Lat: 50.09, Lng: 30.09}}
	far := &model.User{Location: &model.GeoLocation{Lat: 50.11, Lng: 30.0}}
	missing := &model.User{}

	assert.Equal(t, 10.0, Score(near, task, &model.Bid{}))
	assert.Equal(t, 0.0, Score(far, task, &model.Bid{}))
	assert.Equal(t, 0.0, Score(missing, task, &model.Bid{}))
}

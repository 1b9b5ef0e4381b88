// Package scoring вычисляет рейтинговый балл ставки по заданию.
package scoring

import (
	"math"

	"github.com/AYUSH1442006/nexi-backend/internal/model"
)

// Весовые бюджеты слагаемых. Множитель цены до 1.2 позволяет ценовому
// слагаемому превысить свой вес, поэтому итог ограничивается maxScore.
const (
	ratingWeight     = 30.0
	skillWeight      = 25.0
	priceWeight      = 20.0
	experiencePoint  = 0.75
	experienceCap    = 20
	locationPoints   = 10.0
	priceRatioCap    = 1.2
	locationBoxDelta = 0.1
	maxScore         = 100.0
)

// Score возвращает детерминированный балл ставки в диапазоне [0, 100].
// Функция чистая: не ходит во внешние системы и не мутирует аргументы.
// Отсутствующие необязательные данные (локация, навыки) дают 0 по
// соответствующему слагаемому.
func Score(user *model.User, task *model.Task, bid *model.Bid) float64 {
	score := 0.0

	// Рейтинг пользователя (до 30 баллов).
	score += (user.Rating / 5.0) * ratingWeight

	// Совпадение навыков (до 25 баллов).
	if len(user.Skills) > 0 && len(task.RequiredSkills) > 0 {
		required := make(map[string]struct{}, len(task.RequiredSkills))
		for _, s := range task.RequiredSkills {
			required[s] = struct{}{}
		}

		matched := 0
		for _, s := range user.Skills {
			if _, ok := required[s]; ok {
				matched++
			}
		}

		score += float64(matched) / float64(len(task.RequiredSkills)) * skillWeight
	}

	// Справедливость цены (до 20 баллов c множителем не выше 1.2).
	if bid.AmountCents > 0 {
		ratio := float64(task.BudgetCents) / float64(bid.AmountCents)
		score += math.Min(ratio, priceRatioCap) * priceWeight
	}

	// Опыт исполнителя (до 15 баллов, насыщение на 20 заданиях).
	completed := user.TasksCompleted
	if completed > experienceCap {
		completed = experienceCap
	}
	score += float64(completed) * experiencePoint

	// Близость по координатам: полные 10 баллов внутри окна ~10 км.
	if user.Location != nil && task.Location != nil {
		latDiff := math.Abs(user.Location.Lat - task.Location.Lat)
		lngDiff := math.Abs(user.Location.Lng - task.Location.Lng)

		if latDiff < locationBoxDelta && lngDiff < locationBoxDelta {
			score += locationPoints
		}
	}

	// Множитель цены выше 1.0 может поднять сумму слагаемых выше 100,
	// поэтому итог срезается до верхней границы диапазона.
	score = math.Min(score, maxScore)

	return math.Round(score*100) / 100
}

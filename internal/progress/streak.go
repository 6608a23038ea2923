package progress

import (
	"time"

	"cloud.google.com/go/civil"
)

// Clock отдаёт "сегодня" как календарную дату.
type Clock interface {
	Today() civil.Date
}

// SystemClock считает календарный день в Location (nil = UTC).
// Серия сравнивается только по датам этой зоны, поэтому переезды и переход
// на летнее время не рвут и не удваивают серию.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() civil.Date {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(time.Now().In(loc))
}

// FixedClock - часы с фиксированной датой.
type FixedClock civil.Date

func (c FixedClock) Today() civil.Date { return civil.Date(c) }

// NextStreak считает новую серию дней.
// Второй флаг false - в этот день урок уже проходили, серию писать не нужно.
func NextStreak(prev int, last *civil.Date, today civil.Date) (StreakUpdate, bool) {
	if last != nil && *last == today {
		return StreakUpdate{Streak: prev, LastDate: today}, false
	}
	if last != nil && today.DaysSince(*last) == 1 {
		return StreakUpdate{Streak: prev + 1, LastDate: today}, true
	}
	// разрыв в 2+ дня, первая запись или дата из будущего
	return StreakUpdate{Streak: 1, LastDate: today}, true
}

package progress

import "soyle/internal/models"

type Status string

const (
	StatusCompleted Status = "completed"
	// StatusUnlocked - урок до границы, пропущенный при прохождении не по порядку.
	StatusUnlocked Status = "unlocked"
	StatusCurrent  Status = "current"
	StatusLocked   Status = "locked"
)

type LessonState struct {
	LessonID string `json:"lesson_id"`
	Status   Status `json:"status"`
}

// Playable: пройденный, открытый и текущий уроки можно открыть.
func (s LessonState) Playable() bool { return s.Status != StatusLocked }

// Unlock классифицирует уроки раздела. Граница - максимальный индекс пройденного
// урока (а не их количество): урок сразу за ней текущий, дальше - закрытые.
func Unlock(lessons []models.Lesson, completed map[string]struct{}) []LessonState {
	frontier := -1
	for i, l := range lessons {
		if _, ok := completed[l.ID]; ok {
			frontier = i
		}
	}

	states := make([]LessonState, len(lessons))
	for i, l := range lessons {
		st := LessonState{LessonID: l.ID}
		_, done := completed[l.ID]
		switch {
		case done:
			st.Status = StatusCompleted
		case i <= frontier:
			st.Status = StatusUnlocked
		case i == frontier+1:
			st.Status = StatusCurrent
		default:
			st.Status = StatusLocked
		}
		states[i] = st
	}
	return states
}

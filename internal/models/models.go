package models

import (
	"slices"

	"cloud.google.com/go/civil"
)

// Section представляет один раздел курса ("Основы 1", "Основы 2"...)
// Порядок уроков внутри раздела определяет порядок их открытия.
type Section struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	TotalPoints int      `json:"total_points"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson представляет один урок
type Lesson struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SectionID string `json:"section_id"`
	Points    int    `json:"points"`

	Tasks []Exercise `json:"-"`
}

// Playable: урок без заданий нельзя открыть, но политика открытия его всё равно классифицирует.
func (l Lesson) Playable() bool { return len(l.Tasks) > 0 }

// Task ищет задание урока по ID.
func (l Lesson) Task(id string) (Exercise, bool) {
	for _, t := range l.Tasks {
		if t.ExerciseID() == id {
			return t, true
		}
	}
	return nil, false
}

// Progress - одна логическая запись прогресса пользователя.
// Поля JSON совпадают с форматом локального блоба "soyleProgress".
type Progress struct {
	XP                 int         `json:"xp"`
	CompletedLessons   []string    `json:"completedLessons"`
	CurrentStreak      int         `json:"currentStreak"`
	LastCompletionDate *civil.Date `json:"lastCompletionDate,omitempty"`
}

// HasCompleted проверяет принадлежность урока множеству пройденных.
func (p Progress) HasCompleted(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// CompletedSet возвращает пройденные уроки как множество.
func (p Progress) CompletedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.CompletedLessons))
	for _, id := range p.CompletedLessons {
		set[id] = struct{}{}
	}
	return set
}

// Clone возвращает копию, не разделяющую память с оригиналом.
func (p Progress) Clone() Progress {
	out := p
	out.CompletedLessons = slices.Clone(p.CompletedLessons)
	if p.CompletedLessons == nil {
		out.CompletedLessons = []string{}
	}
	if p.LastCompletionDate != nil {
		d := *p.LastCompletionDate
		out.LastCompletionDate = &d
	}
	return out
}

// Identity - "кто играет": ID пользователя от провайдера аутентификации
// или, если его нет, ID устройства для анонимного прогресса.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Anonymous: нет пользователя, значит авторитетна локальная запись устройства.
func (i Identity) Anonymous() bool { return i.UserID == "" }

// Key - стабильный ключ сессии.
func (i Identity) Key() string {
	if i.Anonymous() {
		return "device:" + i.DeviceID
	}
	return "user:" + i.UserID
}

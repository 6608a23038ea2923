// Package catalog загружает неизменяемый каталог курса: разделы, уроки, задания.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"soyle/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

// File - YAML-структура файла каталога.
type File struct {
	Sections []SectionFile `yaml:"sections"`
}

type SectionFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	TotalPoints int          `yaml:"total_points,omitempty"`
	Lessons     []LessonFile `yaml:"lessons"`
}

type LessonFile struct {
	ID     string        `yaml:"id"`
	Title  string        `yaml:"title"`
	Points int           `yaml:"points"`
	Tasks  []models.Task `yaml:"tasks,omitempty"`
}

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog - загруженный и проверенный каталог. Безопасен для конкурентного чтения.
type Catalog struct {
	sections []models.Section
	lessons  map[string]models.Lesson
	bySecID  map[string]int
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return Build(file)
}

// Build проверяет файл каталога и строит Catalog.
func Build(file File) (*Catalog, error) {
	c := &Catalog{
		lessons: make(map[string]models.Lesson),
		bySecID: make(map[string]int),
	}
	if len(file.Sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", ErrInvalidCatalog)
	}

	for _, sf := range file.Sections {
		if sf.ID == "" {
			return nil, fmt.Errorf("%w: section without id", ErrInvalidCatalog)
		}
		if _, dup := c.bySecID[sf.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate section %q", ErrInvalidCatalog, sf.ID)
		}

		sec := models.Section{ID: sf.ID, Title: sf.Title, TotalPoints: sf.TotalPoints}
		sum := 0
		for _, lf := range sf.Lessons {
			lesson, err := buildLesson(sf.ID, lf)
			if err != nil {
				return nil, err
			}
			if _, dup := c.lessons[lesson.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate lesson %q", ErrInvalidCatalog, lesson.ID)
			}
			c.lessons[lesson.ID] = lesson
			sec.Lessons = append(sec.Lessons, lesson)
			sum += lesson.Points
		}
		if sec.TotalPoints == 0 {
			sec.TotalPoints = sum
		}

		c.bySecID[sec.ID] = len(c.sections)
		c.sections = append(c.sections, sec)
	}
	return c, nil
}

func buildLesson(sectionID string, lf LessonFile) (models.Lesson, error) {
	if lf.ID == "" {
		return models.Lesson{}, fmt.Errorf("%w: lesson without id in section %q", ErrInvalidCatalog, sectionID)
	}
	if lf.Points <= 0 {
		return models.Lesson{}, fmt.Errorf("%w: lesson %q: points must be positive, got %d", ErrInvalidCatalog, lf.ID, lf.Points)
	}

	lesson := models.Lesson{ID: lf.ID, Title: lf.Title, SectionID: sectionID, Points: lf.Points}
	seen := make(map[string]struct{}, len(lf.Tasks))
	for _, t := range lf.Tasks {
		ex, err := t.Exercise()
		if err != nil {
			return models.Lesson{}, fmt.Errorf("%w: lesson %q: %v", ErrInvalidCatalog, lf.ID, err)
		}
		if err := models.ValidateExercise(ex); err != nil {
			return models.Lesson{}, fmt.Errorf("%w: lesson %q: %v", ErrInvalidCatalog, lf.ID, err)
		}
		if _, dup := seen[t.ID]; dup {
			return models.Lesson{}, fmt.Errorf("%w: lesson %q: duplicate task %q", ErrInvalidCatalog, lf.ID, t.ID)
		}
		seen[t.ID] = struct{}{}
		lesson.Tasks = append(lesson.Tasks, ex)
	}
	return lesson, nil
}

// Sections возвращает разделы в порядке каталога.
func (c *Catalog) Sections() []models.Section {
	return c.sections
}

func (c *Catalog) Section(id string) (models.Section, bool) {
	i, ok := c.bySecID[id]
	if !ok {
		return models.Section{}, false
	}
	return c.sections[i], true
}

func (c *Catalog) Lesson(id string) (models.Lesson, bool) {
	l, ok := c.lessons[id]
	return l, ok
}

// Points - очки за урок; используется при переносе анонимного прогресса.
func (c *Catalog) Points(lessonID string) (int, bool) {
	l, ok := c.lessons[lessonID]
	return l.Points, ok
}

// PlayableLessons - уроки раздела, в которых есть задания.
func PlayableLessons(s models.Section) []models.Lesson {
	var out []models.Lesson
	for _, l := range s.Lessons {
		if l.Playable() {
			out = append(out, l)
		}
	}
	return out
}

// Export превращает каталог обратно в File (для выгрузки в YAML).
func (c *Catalog) Export() File {
	var f File
	for _, s := range c.sections {
		sf := SectionFile{ID: s.ID, Title: s.Title, TotalPoints: s.TotalPoints}
		for _, l := range s.Lessons {
			lf := LessonFile{ID: l.ID, Title: l.Title, Points: l.Points}
			for _, ex := range l.Tasks {
				lf.Tasks = append(lf.Tasks, models.TaskOf(ex))
			}
			sf.Lessons = append(sf.Lessons, lf)
		}
		f.Sections = append(f.Sections, sf)
	}
	return f
}

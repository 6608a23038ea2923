package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"soyle/internal/catalog"
	"soyle/internal/logger"
	"soyle/internal/models"
)

const defaultPoints = 5 // Очки за урок, если в каталоге их ещё нет

// Имя файла: section-1_lesson_3.csv
var fileNameRegex = regexp.MustCompile(`^section-([0-9]+)_lesson_([0-9]+)\.csv$`)

// Структура для сортировки файлов
type lessonFile struct {
	Path       string
	SectionNum int
	LessonNum  int
}

func (lf lessonFile) SectionID() string { return fmt.Sprintf("section-%d", lf.SectionNum) }
func (lf lessonFile) LessonID() string  { return fmt.Sprintf("s%d-l%d", lf.SectionNum, lf.LessonNum) }

func main() {
	log, err := logger.New("dev")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Запуск загрузчика данных...")
	startTime := time.Now()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("Ошибка загрузки .env файла", "error", err)
	}

	csvDir := getEnv("CSV_DIR", "scripts/lessons")
	outPath := getEnv("CATALOG_PATH", "catalog.yaml")

	file, err := loadExisting(outPath)
	if err != nil {
		log.Fatal("Не удалось прочитать текущий каталог", "path", outPath, "error", err)
	}

	count, err := processData(log, &file, csvDir)
	if err != nil {
		log.Fatal("Ошибка обработки данных, каталог не изменён", "error", err)
	}

	// Каталог пишется только целиком проверенным
	if _, err := catalog.Build(file); err != nil {
		log.Fatal("Итоговый каталог не прошёл проверку, каталог не изменён", "error", err)
	}
	if err := writeCatalog(outPath, file); err != nil {
		log.Fatal("Не удалось сохранить каталог", "path", outPath, "error", err)
	}

	log.Info("--- УСПЕХ! --- Данные успешно загружены", "tasks", count, "path", outPath, "elapsed", time.Since(startTime))
}

func processData(log *logger.Logger, file *catalog.File, dir string) (int, error) {
	log.Info("Поиск и сортировка CSV файлов...", "dir", dir)
	lessonFiles, err := findAndSortFiles(dir)
	if err != nil {
		return 0, err
	}
	log.Info("Найдены файлы уроков для обработки", "count", len(lessonFiles))

	total := 0
	for _, lf := range lessonFiles {
		log.Info("Обработка", "file", filepath.Base(lf.Path), "section", lf.SectionID(), "lesson", lf.LessonID())

		tasks, err := loadTasks(log, lf.Path)
		if err != nil {
			return total, fmt.Errorf("ошибка загрузки %s: %w", lf.Path, err)
		}

		section := getOrInsertSection(log, file, lf)
		lesson := getOrInsertLesson(log, section, lf)
		lesson.Tasks = tasks
		total += len(tasks)
	}
	return total, nil
}

// findAndSortFiles находит, парсит и сортирует CSV
func findAndSortFiles(dir string) ([]lessonFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var lessonFiles []lessonFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := fileNameRegex.FindStringSubmatch(file.Name())
		if len(matches) != 3 {
			continue
		}
		sectionNum, _ := strconv.Atoi(matches[1])
		lessonNum, _ := strconv.Atoi(matches[2])
		lessonFiles = append(lessonFiles, lessonFile{
			Path:       filepath.Join(dir, file.Name()),
			SectionNum: sectionNum,
			LessonNum:  lessonNum,
		})
	}

	// Сначала по разделу, потом по номеру урока (1, 2, 10)
	sort.Slice(lessonFiles, func(i, j int) bool {
		if lessonFiles[i].SectionNum != lessonFiles[j].SectionNum {
			return lessonFiles[i].SectionNum < lessonFiles[j].SectionNum
		}
		return lessonFiles[i].LessonNum < lessonFiles[j].LessonNum
	})
	return lessonFiles, nil
}

func getOrInsertSection(log *logger.Logger, file *catalog.File, lf lessonFile) *catalog.SectionFile {
	id := lf.SectionID()
	for i := range file.Sections {
		if file.Sections[i].ID == id {
			return &file.Sections[i]
		}
	}
	file.Sections = append(file.Sections, catalog.SectionFile{ID: id, Title: fmt.Sprintf("Раздел %d", lf.SectionNum)})
	log.Info(" -> Создан новый раздел", "id", id)
	return &file.Sections[len(file.Sections)-1]
}

func getOrInsertLesson(log *logger.Logger, section *catalog.SectionFile, lf lessonFile) *catalog.LessonFile {
	id := lf.LessonID()
	for i := range section.Lessons {
		if section.Lessons[i].ID == id {
			return &section.Lessons[i]
		}
	}
	section.Lessons = append(section.Lessons, catalog.LessonFile{
		ID:     id,
		Title:  fmt.Sprintf("Урок %d", lf.LessonNum),
		Points: defaultPoints,
	})
	// итог раздела пересчитается при загрузке
	section.TotalPoints = 0
	log.Info("   -> Создан новый урок", "id", id)
	return &section.Lessons[len(section.Lessons)-1]
}

// loadTasks читает CSV урока.
// Колонки: task_id(0), type(1), question(2), options(3), answer(4), explanation(5)
// options разделены "|"; для MATCH_PAIRS это пары "фраза=перевод".
func loadTasks(log *logger.Logger, csvPath string) ([]models.Task, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Пропускаем заголовок
	if _, err := reader.Read(); err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var tasks []models.Task
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 5 {
			log.Warn("   ! Пропуск строки (мало столбцов)", "record", record)
			continue
		}

		t, err := parseTask(record)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func parseTask(record []string) (models.Task, error) {
	t := models.Task{
		ID:       strings.TrimSpace(record[0]),
		Type:     models.Kind(strings.ToUpper(strings.TrimSpace(record[1]))),
		Question: strings.TrimSpace(record[2]),
	}
	options := splitList(record[3])
	answer := strings.TrimSpace(record[4])
	if len(record) > 5 {
		t.Explanation = strings.TrimSpace(record[5])
	}

	switch t.Type {
	case models.KindTrueFalse:
		v, err := strconv.ParseBool(answer)
		if err != nil {
			return t, fmt.Errorf("задание %s: ответ TRUE_FALSE должен быть true или false, получено %q", t.ID, answer)
		}
		t.CorrectAnswer = v
	case models.KindSentenceBuilder:
		t.Words, t.CorrectAnswer = options, answer
	case models.KindMatchPairs:
		for _, item := range options {
			prompt, ans, ok := strings.Cut(item, "=")
			if !ok {
				return t, fmt.Errorf("задание %s: пара без \"=\": %q", t.ID, item)
			}
			t.Pairs = append(t.Pairs, models.Pair{Prompt: strings.TrimSpace(prompt), Answer: strings.TrimSpace(ans)})
		}
	default:
		t.Options, t.CorrectAnswer = options, answer
	}

	// ошибки формата задания видны сразу, с номером задания
	ex, err := t.Exercise()
	if err != nil {
		return t, err
	}
	if err := models.ValidateExercise(ex); err != nil {
		return t, err
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, "|") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadExisting(path string) (catalog.File, error) {
	var file catalog.File
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, err
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("decode %s: %w", path, err)
	}
	return file, nil
}

// writeCatalog пишет во временный файл и переименовывает его,
// чтобы читатели не увидели каталог наполовину.
func writeCatalog(path string, file catalog.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		tmp.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

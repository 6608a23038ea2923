package main

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"soyle/internal/catalog"
	"soyle/internal/logger"
	"soyle/internal/speech"
)

// === Настройки ===
const maxWorkers = 10 // Кол-во одновременных запросов к сервису озвучки
// Пауза после каждого запроса: 10 воркеров * (1000ms / 700ms) = ~850 req/min
const throttle = 700 * time.Millisecond

// =================

type result struct {
	text    string
	path    string
	created bool
	err     error
}

func main() {
	log, err := logger.New("dev")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Запуск генератора аудио...")

	// Запускаем из корня: go run ./scripts/audio_generator
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("Ошибка загрузки .env файла", "error", err)
	}

	cat, err := loadCatalog(os.Getenv("CATALOG_PATH"))
	if err != nil {
		log.Fatal("Не удалось загрузить каталог", "error", err)
	}

	ctx := context.Background()
	lang := getEnv("TTS_LANG", "kk-KZ")
	synth, err := newSynthesizer(ctx, lang)
	if err != nil {
		log.Fatal("Не удалось создать клиент озвучки", "error", err)
	}
	log.Info("Сервис озвучки готов", "backend", synth.Name())

	outputDir := getEnv("MEDIA_DIR", "media")
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		log.Fatal("Не удалось создать папку", "dir", outputDir, "error", err)
	}

	texts := collectTexts(cat)
	if len(texts) == 0 {
		log.Info("В каталоге нет текстов для озвучки. Завершение.")
		return
	}
	log.Info("Найдены тексты для озвучки", "count", len(texts))

	jobs := make(chan string, len(texts))
	results := make(chan result, len(texts))
	var wg sync.WaitGroup

	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go worker(ctx, &wg, synth, outputDir, lang, jobs, results)
	}

	for _, t := range texts {
		jobs <- t
	}
	close(jobs)

	wg.Wait()
	close(results)

	created, skipped, failed := 0, 0, 0
	for r := range results {
		switch {
		case r.err != nil:
			failed++
			log.Warn("Не удалось озвучить", "text", r.text, "error", r.err)
		case r.created:
			created++
			log.Debug("Успех", "text", r.text, "path", r.path)
		default:
			skipped++
		}
	}
	log.Info("--- Генерация завершена! ---", "created", created, "skipped", skipped, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func newSynthesizer(ctx context.Context, lang string) (speech.Synthesizer, error) {
	switch getEnv("TTS_BACKEND", "google") {
	case "yandex":
		return speech.NewYandex(speech.YandexConfig{
			APIKey:   os.Getenv("YANDEX_API_KEY"),
			FolderID: os.Getenv("YANDEX_FOLDER_ID"),
			URL:      os.Getenv("YANDEX_TTS_URL"),
			Lang:     lang,
		}), nil
	default:
		// ключ Google ищется через GOOGLE_APPLICATION_CREDENTIALS
		return speech.NewGoogle(ctx, lang)
	}
}

// collectTexts - уникальные тексты всех заданий каталога в стабильном порядке.
func collectTexts(cat *catalog.Catalog) []string {
	seen := map[string]struct{}{}
	for _, s := range cat.Sections() {
		for _, l := range s.Lessons {
			for _, ex := range l.Tasks {
				for _, t := range speech.SpokenTexts(ex) {
					seen[t] = struct{}{}
				}
			}
		}
	}
	texts := make([]string, 0, len(seen))
	for t := range seen {
		texts = append(texts, t)
	}
	sort.Strings(texts)
	return texts
}

// worker берёт тексты из jobs; уже озвученные файлы не трогает.
func worker(ctx context.Context, wg *sync.WaitGroup, synth speech.Synthesizer, dir, lang string, jobs <-chan string, results chan<- result) {
	defer wg.Done()

	for text := range jobs {
		path, created, err := speech.SaveFile(ctx, synth, dir, speech.Request{Text: text, Lang: lang})
		results <- result{text: text, path: path, created: created, err: err}

		if created || err != nil {
			time.Sleep(throttle)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

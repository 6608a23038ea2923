package speech

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"soyle/internal/models"
)

// Prerendered отдаёт заранее озвученные файлы из Dir (их пишет audio_generator)
// и обращается к Next только за теми текстами, которых там нет.
type Prerendered struct {
	Dir  string
	Lang string
	Next Synthesizer
}

func (p *Prerendered) Name() string { return p.Next.Name() }

func (p *Prerendered) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if p.Dir != "" {
		if n, err := normalize(req, p.Lang); err == nil {
			data, err := os.ReadFile(filepath.Join(p.Dir, FileName(p.Next.Name(), n)))
			if err == nil {
				return Audio{Data: data, ContentType: "audio/mpeg"}, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return Audio{}, fmt.Errorf("read prerendered audio: %w", err)
			}
			req = n
		}
	}
	return p.Next.Synthesize(ctx, req)
}

// SaveFile озвучивает текст и кладёт mp3 в dir под именем FileName.
// Уже существующий файл не перезаписывается; created == false в этом случае.
func SaveFile(ctx context.Context, synth Synthesizer, dir string, req Request) (path string, created bool, err error) {
	path = filepath.Join(dir, FileName(synth.Name(), req))
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	audio, err := synth.Synthesize(ctx, req)
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, audio.Data, 0644); err != nil {
		return "", false, fmt.Errorf("WriteFile: %w", err)
	}
	return path, true, nil
}

// SpokenTexts - казахские тексты задания, которые ученик может прослушать.
func SpokenTexts(ex models.Exercise) []string {
	var texts []string
	switch e := ex.(type) {
	case models.MultipleChoice:
		texts = append(texts, e.Options...)
	case models.OddOneOut:
		texts = append(texts, e.Options...)
	case models.DialogueCompletion:
		texts = append(texts, e.Options...)
	case models.SentenceBuilder:
		texts = append(texts, e.CorrectAnswer)
	case models.MatchPairs:
		for _, p := range e.Pairs {
			texts = append(texts, p.Answer)
		}
	}

	out := texts[:0]
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Package speech озвучивает тексты заданий через внешние сервисы синтеза речи.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported - синтез речи не настроен.
	ErrUnsupported = errors.New("speech synthesis is not configured")
	ErrEmptyText   = errors.New("speech: empty text")
)

// Request - что и на каком языке озвучить. Lang в формате BCP-47 (kk-KZ).
type Request struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Audio - готовый звук.
type Audio struct {
	Data        []byte
	ContentType string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
	// Name входит в ключ кеша: разные движки звучат по-разному.
	Name() string
}

// Disabled - синтезатор для TTS_BACKEND=none.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Synthesize(context.Context, Request) (Audio, error) {
	return Audio{}, ErrUnsupported
}

func normalize(req Request, defaultLang string) (Request, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return req, ErrEmptyText
	}
	if req.Lang == "" {
		req.Lang = defaultLang
	}
	return req, nil
}

// StatusError - сервис синтеза ответил ошибкой.
type StatusError struct {
	Backend string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s tts: status %d: %s", e.Backend, e.Status, e.Body)
}

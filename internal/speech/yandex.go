package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultYandexURL = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"

// yandexVoices - голос по умолчанию для языка.
var yandexVoices = map[string]string{
	"kk-KK": "madi",
	"ru-RU": "alena",
	"en-US": "john",
}

type YandexConfig struct {
	APIKey   string
	FolderID string
	URL      string
	Lang     string
}

// Yandex - синтез через Yandex SpeechKit v1.
type Yandex struct {
	client *resty.Client
	cfg    YandexConfig
}

func NewYandex(cfg YandexConfig) *Yandex {
	if cfg.URL == "" {
		cfg.URL = DefaultYandexURL
	}
	if cfg.Lang == "" {
		cfg.Lang = "kk-KK"
	}
	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Authorization", "Api-Key "+cfg.APIKey)
	return &Yandex{client: client, cfg: cfg}
}

func (y *Yandex) Name() string { return "yandex" }

func (y *Yandex) Synthesize(ctx context.Context, req Request) (Audio, error) {
	req, err := normalize(req, y.cfg.Lang)
	if err != nil {
		return Audio{}, err
	}
	lang := yandexLang(req.Lang)

	form := map[string]string{
		"text":     req.Text,
		"lang":     lang,
		"format":   "mp3",
		"folderId": y.cfg.FolderID,
	}
	if voice, ok := yandexVoices[lang]; ok {
		form["voice"] = voice
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(y.cfg.URL)
	if err != nil {
		return Audio{}, fmt.Errorf("yandex tts request: %w", err)
	}
	if resp.IsError() {
		return Audio{}, &StatusError{Backend: y.Name(), Status: resp.StatusCode(), Body: resp.String()}
	}
	return Audio{Data: resp.Body(), ContentType: "audio/mpeg"}, nil
}

// yandexLang: SpeechKit называет казахский kk-KK, а не kk-KZ.
func yandexLang(lang string) string {
	if lang == "kk-KZ" || lang == "kk" {
		return "kk-KK"
	}
	return lang
}

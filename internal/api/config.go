package api

import "time"

// Options - настройки HTTP-слоя.
type Options struct {
	// JWTSecret проверяет токены провайдера входа (HS256). Пустой - токены не принимаются.
	JWTSecret []byte
	// DeviceCookie - cookie с идентификатором устройства анонимного ученика.
	DeviceCookie string
	// LoadWait - сколько ждать загрузки прогресса, прежде чем ответить 202.
	LoadWait time.Duration
	// MaxTTSChars - предел длины текста для озвучки.
	MaxTTSChars int
}

func DefaultOptions() Options {
	return Options{
		DeviceCookie: "device_id",
		LoadWait:     2 * time.Second,
		MaxTTSChars:  500,
	}
}

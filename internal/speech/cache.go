package speech

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"soyle/internal/logger"
)

// Cache хранит последние size озвучек и вытесняет самые старые.
// Одновременные запросы одного текста уходят в синтезатор один раз.
type Cache struct {
	next Synthesizer
	lang string
	size int
	log  *logger.Logger

	mu    sync.Mutex
	items map[string]Audio
	order []string

	group singleflight.Group
}

// NewCache оборачивает next. lang подставляется в запросы без языка,
// чтобы " сәлем " и "сәлем" на языке по умолчанию попадали в одну запись.
func NewCache(next Synthesizer, lang string, size int, log *logger.Logger) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{
		next:  next,
		lang:  lang,
		size:  size,
		log:   log.With("component", "SpeechCache", "backend", next.Name()),
		items: make(map[string]Audio, size),
	}
}

func (c *Cache) Name() string { return c.next.Name() }

// Key - стабильный ключ озвучки, годится и как имя файла.
func Key(backend string, req Request) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(backend))
	h.Write([]byte{0})
	h.Write([]byte(req.Lang))
	h.Write([]byte{0})
	h.Write([]byte(req.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// FileName - имя mp3-файла для заранее озвученного текста.
func FileName(backend string, req Request) string {
	return Key(backend, req) + ".mp3"
}

func (c *Cache) Synthesize(ctx context.Context, req Request) (Audio, error) {
	req, err := normalize(req, c.lang)
	if err != nil {
		return Audio{}, err
	}
	key := Key(c.next.Name(), req)

	c.mu.Lock()
	a, ok := c.items[key]
	c.mu.Unlock()
	if ok {
		return a, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		a, err := c.next.Synthesize(ctx, req)
		if err != nil {
			return Audio{}, err
		}
		c.put(key, a)
		return a, nil
	})
	if err != nil {
		return Audio{}, err
	}
	if shared {
		c.log.Debug("shared in-flight synthesis", "key", key)
	}
	return v.(Audio), nil
}

func (c *Cache) put(key string, a Audio) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return
	}
	for len(c.order) >= c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.items[key] = a
	c.order = append(c.order, key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

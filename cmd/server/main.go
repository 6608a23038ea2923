package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"soyle/internal/api"
	"soyle/internal/catalog"
	"soyle/internal/config"
	"soyle/internal/database"
	"soyle/internal/logger"
	"soyle/internal/progress"
	"soyle/internal/session"
	"soyle/internal/speech"
	"soyle/internal/store/local"
	"soyle/internal/store/postgres"
	"soyle/internal/store/redisstore"
	"soyle/internal/store/sqlitekv"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatal("catalog load error", "error", err)
	}
	log.Info("catalog loaded", "sections", len(cat.Sections()), "path", cfg.CatalogPath)

	remote, closeRemote, err := openRemoteStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("remote store error", "store", cfg.RemoteStore, "error", err)
	}
	defer closeRemote()

	kv, err := sqlitekv.Open(cfg.LocalStorePath)
	if err != nil {
		log.Fatal("local store error", "path", cfg.LocalStorePath, "error", err)
	}
	defer kv.Close()

	retryCfg := progress.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.StoreRetryAttempts
	retryCfg.InitialDelay = cfg.StoreRetryDelay

	mgr := session.NewManager(
		progress.NewRetryingStore(remote, retryCfg, log),
		local.NewStore(kv, log),
		progress.SystemClock{Location: cfg.StreakTimezone},
		log,
	)

	go mgr.RunJanitor(ctx, cfg.SessionIdleTTL)

	synth, closeSynth, err := openSynthesizer(ctx, cfg, log)
	if err != nil {
		log.Fatal("speech backend error", "backend", cfg.TTSBackend, "error", err)
	}
	defer closeSynth()

	opts := api.DefaultOptions()
	opts.JWTSecret = []byte(cfg.JWTSecret)
	h := api.NewApiHandler(cat, mgr, synth, opts, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting server", "addr", srv.Addr, "remote_store", cfg.RemoteStore, "tts", cfg.TTSBackend)
	serveErr := serve(ctx, srv, log)
	if serveErr != nil {
		log.Error("server error", "error", serveErr)
	}
	// дописываем принятые записи прогресса
	mgr.Close()
	log.Info("server stopped")
	if serveErr != nil {
		// os.Exit пропускает defer, поэтому закрываем вручную
		closeSynth()
		kv.Close()
		closeRemote()
		log.Sync()
		os.Exit(1)
	}
}

// serve работает до отмены ctx или до ошибки слушателя и в обоих случаях
// останавливает сервер, не обрывая уже начатые запросы.
func serve(ctx context.Context, srv *http.Server, log *logger.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("server shutdown error", "error", shutdownErr)
	}
	return err
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func openRemoteStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (progress.Store, func(), error) {
	switch cfg.RemoteStore {
	case "postgres":
		db, err := database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("database connected")
		store := postgres.NewStore(db, log)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	case "redis":
		rdb, err := redisstore.Dial(ctx, &goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("redis connected", "addr", cfg.RedisAddr)
		return redisstore.NewStore(rdb, log), func() { rdb.Close() }, nil

	case "memory":
		log.Warn("remote progress is kept in memory and will be lost on restart")
		return progress.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown remote store %q", cfg.RemoteStore)
}

func openSynthesizer(ctx context.Context, cfg *config.Config, log *logger.Logger) (speech.Synthesizer, func(), error) {
	var (
		next    speech.Synthesizer
		closeFn = func() {}
	)
	switch cfg.TTSBackend {
	case "google":
		g, err := speech.NewGoogle(ctx, cfg.TTSLang)
		if err != nil {
			return nil, nil, err
		}
		next, closeFn = g, func() { g.Close() }
	case "yandex":
		next = speech.NewYandex(speech.YandexConfig{
			APIKey:   cfg.YandexAPIKey,
			FolderID: cfg.YandexFolderID,
			URL:      cfg.YandexTTSURL,
			Lang:     cfg.TTSLang,
		})
	default:
		return speech.Disabled{}, closeFn, nil
	}
	return &speech.Prerendered{
		Dir:  cfg.MediaDir,
		Lang: cfg.TTSLang,
		Next: speech.NewCache(next, cfg.TTSLang, cfg.TTSCacheSize, log),
	}, closeFn, nil
}

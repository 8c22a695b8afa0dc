// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"field-protection-service/config"
	"field-protection-service/internal/domain"
	"field-protection-service/internal/handler"
	"field-protection-service/internal/infra"
	"field-protection-service/internal/repository"
	"field-protection-service/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracer, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, infra.ParseLevel(cfg.LogLevel))

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return err
	}
	if cfg.DatabaseDriver == "sqlite" {
		if err := repository.AutoMigrate(ctx, db); err != nil {
			return err
		}
	}

	wrapper, closeWrapper, err := newKeyWrapper(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWrapper()

	// メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// DI
	keyService := usecase.NewKeyService(repository.NewKeyRepository(db), wrapper, cfg.KeyRotationPeriod(), metrics)
	cipher := usecase.NewFieldCipher(keyService, metrics)
	registry := usecase.NewFieldRegistry(repository.NewSensitiveFieldRepository(db), cfg.RegistryCacheTTL)
	accessService := usecase.NewAccessService(repository.NewAccessRepository(db), metrics)

	if cfg.SensitiveFieldsFile != "" {
		defs, err := repository.LoadSensitiveFieldsFile(cfg.SensitiveFieldsFile)
		if err != nil {
			return err
		}
		if err := registry.Register(ctx, defs); err != nil {
			return err
		}
	}

	metadata, due, err := keyService.ActiveKeyStatus(ctx)
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		slog.Info("no active field encryption key yet; one is generated on first encryption")
	case err != nil:
		return err
	case due:
		slog.Warn("active field encryption key is past its rotation date",
			"key_identifier", metadata.KeyIdentifier,
			"rotation_date", metadata.RotationDate.Format(time.RFC3339),
		)
	}

	router := handler.NewRouter(handler.Handlers{
		Keys:     handler.NewKeyHandler(keyService),
		Fields:   handler.NewFieldHandler(cipher),
		Entities: handler.NewEntityHandler(registry, cipher),
		Access:   handler.NewAccessHandler(accessService),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "environment", cfg.Environment)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// newKeyWrapper はフィールド鍵のラップに使う鍵暗号化方式を選ぶ。
// KMS_KEY_NAMEが設定されていればCloud KMS、なければマスター鍵を使う。
func newKeyWrapper(ctx context.Context, cfg *config.Config) (usecase.KeyWrapper, func(), error) {
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("wrapping field keys with Cloud KMS")
		return kmsClient, func() {
			if err := kmsClient.Close(); err != nil {
				slog.Error("failed to close KMS client", "error", err)
			}
		}, nil
	}

	if cfg.MasterKey == "" {
		if cfg.IsProductionLike() {
			slog.Warn("MASTER_KEY is not set; using the development master key",
				"environment", cfg.Environment,
			)
		} else {
			slog.Info("MASTER_KEY is not set; using the development master key")
		}
	}
	masterKey, err := infra.NewMasterKeyCipher(cfg.MasterKey)
	if err != nil {
		return nil, nil, err
	}
	return masterKey, func() {}, nil
}

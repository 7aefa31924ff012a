package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"propie/api/internal/app"
	"propie/api/internal/config"
	"propie/api/internal/email"
	"propie/api/internal/fingerprint"
	"propie/api/internal/logging"
	"propie/api/internal/objectstore"
	"propie/api/internal/search"
	"propie/api/internal/session"
	"propie/api/internal/store"
)

// runtime holds the wired service and everything that must be closed with it.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	repo    *store.Repository
	service *app.Service
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	_ = r.logger.Sync()
}

func loadRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	repo, err := store.Shared(ctx, store.Options{
		Backend:     cfg.RepositoryBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.repo = repo
	rt.closers = append(rt.closers, func() { _ = repo.Close() })

	deps := app.Deps{
		Config: cfg,
		Repo:   repo,
		Logger: logger,
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, logger),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisStore.Close() })
		deps.Sessions = redisStore
		deps.Fingerprints = fingerprint.NewService(fingerprint.NewRedisBaselines(redisStore.Client()))
		logger.Info("using redis for refresh sessions and device baselines")
	} else {
		logger.Info("using sql store for refresh sessions, memory for device baselines")
	}

	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		objects, err := objectstore.NewMinIO(ctx, objectstore.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("object storage failed: %w", err)
		}
		deps.Objects = objects
	} else {
		logger.Warn("MINIO_ENDPOINT not set, documents are kept in memory")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		deps.Search = search.NewService(search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger), repo, logger)
	}

	rt.service = app.New(deps)
	rt.closers = append(rt.closers, rt.service.Close)
	return rt, nil
}

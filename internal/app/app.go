package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atviraknyga/bookapi/internal/adapters/events"
	"github.com/atviraknyga/bookapi/internal/adapters/httpapi"
	"github.com/atviraknyga/bookapi/internal/adapters/policyfile"
	sqliteadapter "github.com/atviraknyga/bookapi/internal/adapters/sqlite"
	"github.com/atviraknyga/bookapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/internal/core/ports"
	"github.com/atviraknyga/bookapi/internal/core/usecase"
	"github.com/atviraknyga/bookapi/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	PolicyConfigPath string
	BootstrapAPIKey  string
	BootstrapUserID  string
	BootstrapKeyName string
	WebhookURL       string
	WebhookSecret    string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	registry := policyfile.Default()
	if cfg.PolicyConfigPath != "" {
		loaded, err := policyfile.Load(cfg.PolicyConfigPath)
		if err != nil {
			return nil, nil, err
		}
		registry = loaded
	}

	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	bookRepo := sqliteadapter.NewBookRepository(db)
	auditRepo := sqliteadapter.NewAuditLogRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	diffEngine := usecase.NewDiffEngine(registry)
	auditService := usecase.NewAuditService(registry, diffEngine, auditRepo)
	bookService := usecase.NewBookService(bookRepo, auditService)
	authService := usecase.NewAuthService(apiKeyRepo, auditService)

	var publisher ports.AuditEventPublisher = events.NewLogPublisher()
	if cfg.WebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, publisher, 2*time.Second, 100)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		userID := cfg.BootstrapUserID
		if userID == "" {
			userID = "admin"
		}
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := apiKeyRepo.Upsert(bootstrapCtx, domain.APIKey{
			TokenHash: usecase.HashToken(cfg.BootstrapAPIKey),
			UserID:    userID,
			Name:      name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	handler := httpapi.NewHandler(bookService, auditService, authService)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

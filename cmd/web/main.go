package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/thobenayann/hexoprint-sub001/internal/cms"
	"github.com/thobenayann/hexoprint-sub001/internal/contact"
	"github.com/thobenayann/hexoprint-sub001/internal/handlers"
	"github.com/thobenayann/hexoprint-sub001/internal/mail"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/config"
	pfirestore "github.com/thobenayann/hexoprint-sub001/internal/platform/firestore"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/jobs"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/metrics"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/observability"
	"github.com/thobenayann/hexoprint-sub001/internal/platform/secrets"
	platformstorage "github.com/thobenayann/hexoprint-sub001/internal/platform/storage"
	"github.com/thobenayann/hexoprint-sub001/internal/site"
	"github.com/thobenayann/hexoprint-sub001/internal/sitemap"
	"github.com/thobenayann/hexoprint-sub001/internal/upload"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

const contentCacheTTL = 5 * time.Minute

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	level, _ := config.Lookup("LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("web")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	siteDef, err := site.Load(cfg.Site.File, cfg.Site.BaseURL)
	if err != nil {
		logger.Fatal("failed to load site definition", zap.Error(err))
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	recorder.RegisterRuntimeCollectors()

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     version,
			CommitSHA:   commit,
			Environment: cfg.Site.Environment,
			StartedAt:   startedAt,
		}),
	}

	source, closeSource, err := newContentSource(cfg, logger.Named("cms"))
	if err != nil {
		logger.Fatal("failed to initialise content source", zap.Error(err))
	}
	defer closeSource()
	if pinger, ok := source.(interface{ Ping(context.Context) error }); ok {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("cms", pinger.Ping))
	}

	var cached *cms.CachedSource
	if source != nil {
		cached = cms.NewCachedSource(source, contentCacheTTL)
	}

	builderOpts := []sitemap.Option{
		sitemap.WithLogger(logger.Named("sitemap")),
		sitemap.WithFetchTimeout(cfg.CMS.Timeout),
	}
	var contentSource cms.Source
	if cached != nil {
		builderOpts = append(builderOpts, sitemap.WithSource(cached))
		contentSource = cached
	}
	builder := sitemap.NewBuilder(siteDef, builderOpts...)

	mailer, err := newMailer(cfg, logger.Named("mail"))
	if err != nil {
		logger.Fatal("failed to initialise mailer", zap.Error(err))
	}

	publisher, stopPublisher, err := newContactPublisher(ctx, cfg, logger.Named("pubsub"))
	if err != nil {
		logger.Fatal("failed to initialise contact publisher", zap.Error(err))
	}
	defer stopPublisher()

	var contactService handlers.ContactService
	if len(cfg.Mail.AdminRecipients) > 0 {
		deps := contact.ServiceDeps{
			Mailer:          mailer,
			From:            cfg.Mail.From,
			AdminRecipients: cfg.Mail.AdminRecipients,
			CompanyName:     siteDef.Company.Name,
			Logger:          logger.Named("contact"),
		}
		if publisher != nil {
			deps.Publisher = publisher
		}
		svc, err := contact.NewService(deps)
		if err != nil {
			logger.Fatal("failed to initialise contact service", zap.Error(err))
		}
		contactService = svc
	} else {
		logger.Warn("contact: no admin recipients configured; form submissions disabled")
	}

	var uploadService handlers.UploadService
	if cfg.Storage.Enabled() {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		bucket, err := newBucket(storageClient, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialise upload bucket", zap.Error(err))
		}
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("storage", bucket.Ping))
		svc, err := upload.NewService(upload.ServiceDeps{Store: bucket, Logger: logger.Named("upload")})
		if err != nil {
			logger.Fatal("failed to initialise upload service", zap.Error(err))
		}
		uploadService = svc
	} else {
		logger.Warn("upload: no bucket configured; uploads disabled")
	}

	seoHandlers := handlers.NewSEOHandlers(siteDef, builder,
		handlers.WithSitemapTTL(cfg.Site.SitemapTTL),
		handlers.WithProduction(cfg.Site.IsProduction()),
		handlers.WithSEOMetrics(recorder),
	)
	contentHandlers := handlers.NewContentHandlers(contentSource, siteDef)
	contactHandlers := handlers.NewContactHandlers(contactService,
		handlers.WithContactRateLimit(cfg.RateLimits.ContactPerMinute, time.Now),
		handlers.WithContactMetrics(recorder),
	)
	uploadHandlers := handlers.NewUploadHandlers(uploadService,
		handlers.WithUploadRateLimit(cfg.RateLimits.UploadPerMinute, time.Now),
		handlers.WithUploadMetrics(recorder),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Secrets.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		recorder.Middleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithMetricsHandler(recorder.Handler()),
		handlers.WithRoutes(seoHandlers.Routes),
		handlers.WithRoutes(contentHandlers.Routes),
		handlers.WithRoutes(contactHandlers.Routes),
		handlers.WithRoutes(uploadHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("hexoprint web listening",
			zap.String("cms", cfg.CMS.Backend),
			zap.Bool("mail", cfg.Mail.Enabled()),
			zap.Bool("uploads", cfg.Storage.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	project, _ := config.Lookup("SECRETS_PROJECT_ID")
	if project == "" {
		project, _ = config.Lookup("GOOGLE_CLOUD_PROJECT")
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path, _ := config.Lookup("SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// firestoreSource keeps the provider reachable for readiness probes.
type firestoreSource struct {
	*cms.FirestoreSource
	provider *pfirestore.Provider
}

func (s firestoreSource) Ping(ctx context.Context) error {
	return s.provider.Ping(ctx)
}

func newContentSource(cfg config.Config, logger *zap.Logger) (cms.Source, func(), error) {
	noop := func() {}
	switch cfg.CMS.Backend {
	case config.CMSBackendSanity:
		client, err := cms.NewSanityClient(cfg.CMS.Sanity, cms.WithHTTPClient(&http.Client{Timeout: cfg.CMS.Timeout}))
		if err != nil {
			return nil, noop, err
		}
		logger.Info("cms: using sanity", zap.String("dataset", cfg.CMS.Sanity.Dataset))
		return client, noop, nil
	case config.CMSBackendFirestore:
		provider := pfirestore.NewProvider(cfg.CMS.Firestore)
		logger.Info("cms: using firestore", zap.String("project", cfg.CMS.Firestore.ProjectID))
		closeFn := func() {
			if err := provider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}
		return firestoreSource{FirestoreSource: cms.NewFirestoreSource(provider), provider: provider}, closeFn, nil
	default:
		logger.Warn("cms: no backend configured; blog and gallery are unavailable")
		return nil, noop, nil
	}
}

func newMailer(cfg config.Config, logger *zap.Logger) (mail.Mailer, error) {
	if !cfg.Mail.Enabled() {
		logger.Warn("mail: no resend api key; messages are logged instead of sent")
		return mail.NewLogMailer(logger), nil
	}
	return mail.NewResendMailer(cfg.Mail.ResendAPIKey,
		mail.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
		mail.WithLogger(logger),
	)
}

func newBucket(client *cloudstorage.Client, cfg config.StorageConfig) (*platformstorage.Bucket, error) {
	opts := []platformstorage.BucketOption{platformstorage.WithPublicBaseURL(cfg.PublicBaseURL)}

	var signer *platformstorage.ServiceAccountSigner
	var err error
	switch {
	case strings.TrimSpace(cfg.SignerCredentials) != "":
		signer, err = platformstorage.NewServiceAccountSignerFromJSON([]byte(cfg.SignerCredentials))
	case strings.TrimSpace(cfg.SignerCredentialsFile) != "":
		signer, err = platformstorage.NewServiceAccountSignerFromFile(cfg.SignerCredentialsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("storage signer: %w", err)
	}
	if signer != nil {
		opts = append(opts, platformstorage.WithSigner(signer, cfg.SignedURLTTL))
	}
	return platformstorage.NewBucket(client, cfg.Bucket, opts...)
}

func newContactPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (*jobs.ContactPublisher, func(), error) {
	noop := func() {}
	topicID := strings.TrimSpace(cfg.PubSub.ContactTopic)
	if topicID == "" {
		return nil, noop, nil
	}

	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := jobs.NewContactPublisher(client.Topic(topicID))
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	logger.Info("pubsub: publishing contact events", zap.String("topic", topicID))
	return publisher, func() {
		publisher.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}, nil
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"abstraction-billing/internal/audit"
	"abstraction-billing/internal/auth"
	batchapp "abstraction-billing/internal/batch/application"
	batchrepo "abstraction-billing/internal/batch/infrastructure/postgres"
	batchhttp "abstraction-billing/internal/batch/interfaces/http"
	chargerepo "abstraction-billing/internal/charge/infrastructure/postgres"
	"abstraction-billing/internal/chargemodule"
	invapp "abstraction-billing/internal/invoice/application"
	invrepo "abstraction-billing/internal/invoice/infrastructure/postgres"
	"abstraction-billing/internal/observability/logging"
	"abstraction-billing/internal/observability/metrics"
	"abstraction-billing/internal/pipeline"
	pipeapp "abstraction-billing/internal/pipeline/application"
	pipelinerepo "abstraction-billing/internal/pipeline/infrastructure/postgres"
	"abstraction-billing/internal/pipeline/notify"
	"abstraction-billing/internal/pipeline/stages"
	returnsrepo "abstraction-billing/internal/returns/infrastructure/postgres"
	supapp "abstraction-billing/internal/supplementary/application"
	txapp "abstraction-billing/internal/transaction/application"
	txrepo "abstraction-billing/internal/transaction/infrastructure/postgres"
	volapp "abstraction-billing/internal/volume/application"
	volrepo "abstraction-billing/internal/volume/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init(db, logger)

	pipelineCfg, err := pipeline.LoadConfig(cfg.PipelineConfigPath)
	if err != nil {
		logger.Fatal("pipeline config error", zap.Error(err))
	}

	client, err := chargemodule.NewClient(cfg.ChargeModuleURL, cfg.ChargeModuleToken)
	if err != nil {
		logger.Fatal("charge module client error", zap.Error(err))
	}

	batchRepo := batchrepo.NewBatchRepository(db)
	worksetRepo := batchrepo.NewChargeVersionYearRepository(db)
	chargeVersionRepo := chargerepo.NewChargeVersionRepository(db)
	transactionRepo := txrepo.NewTransactionRepository(db)
	invoiceRepo := invrepo.NewInvoiceRepository(db)
	volumeRepo := volrepo.NewBillingVolumeRepository(db)
	returnsReader := returnsrepo.NewReturnLineReader(db)
	jobStore := pipelinerepo.NewJobStore(db)
	dlqStore := pipelinerepo.NewDLQStore(db)
	auditRepo := audit.NewRepository(db)

	batchService, err := batchapp.NewService(batchRepo, batchapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("batch service error", zap.Error(err))
	}
	ids := txapp.UUIDFactory{}
	generator, err := txapp.NewGenerator(ids)
	if err != nil {
		logger.Fatal("transaction generator error", zap.Error(err))
	}
	assembler, err := invapp.NewAssembler(invoiceRepo, ids, logger)
	if err != nil {
		logger.Fatal("invoice assembler error", zap.Error(err))
	}
	reconciler, err := supapp.NewReconciler(transactionRepo, assembler, ids, logger)
	if err != nil {
		logger.Fatal("supplementary reconciler error", zap.Error(err))
	}
	matcher, err := volapp.NewMatcher(volumeRepo, returnsReader, volapp.SeasonPrecedence(pipelineCfg.SeasonPrecedence), logger)
	if err != nil {
		logger.Fatal("volume matcher error", zap.Error(err))
	}
	reviewer, err := volapp.NewReviewer(volumeRepo, logger)
	if err != nil {
		logger.Fatal("volume reviewer error", zap.Error(err))
	}

	createStage, err := stages.NewCreateBillRun(batchService, client, cfg.ChargeRuleset, logger)
	if err != nil {
		logger.Fatal("create bill run stage error", zap.Error(err))
	}
	populateStage, err := stages.NewPopulateChargeVersions(batchService, chargeVersionRepo, worksetRepo, ids, logger)
	if err != nil {
		logger.Fatal("populate stage error", zap.Error(err))
	}
	matchingStage, err := stages.NewTwoPartTariffMatching(batchService, chargeVersionRepo, worksetRepo, matcher, logger)
	if err != nil {
		logger.Fatal("matching stage error", zap.Error(err))
	}
	processStage, err := stages.NewProcessChargeVersions(batchService, chargeVersionRepo, worksetRepo, generator, assembler, reconciler, transactionRepo, volumeRepo, logger)
	if err != nil {
		logger.Fatal("process stage error", zap.Error(err))
	}
	prepareStage, err := stages.NewPrepareTransactions(batchService, transactionRepo, invoiceRepo, client, logger)
	if err != nil {
		logger.Fatal("prepare stage error", zap.Error(err))
	}
	refreshStage, err := stages.NewRefreshTotals(batchService, assembler, client, logger)
	if err != nil {
		logger.Fatal("refresh totals stage error", zap.Error(err))
	}
	sendStage, err := stages.NewSendBatch(batchService, assembler, client, logger)
	if err != nil {
		logger.Fatal("send batch stage error", zap.Error(err))
	}

	registry, err := pipeline.NewRegistry(createStage, populateStage, matchingStage, processStage, prepareStage, refreshStage, sendStage)
	if err != nil {
		logger.Fatal("stage registry error", zap.Error(err))
	}

	var notifier notify.Notifier
	if pipelineCfg.Webhook.URL != "" {
		notifier = notify.NewWebhook(pipelineCfg.Webhook.URL, pipelineCfg.Webhook.Timeout, logger)
	}
	dispatcher, err := pipeline.NewDispatcher(jobStore, dlqStore, batchRepo, registry, pipeline.DefaultGraph(), pipelineCfg, notifier, logger)
	if err != nil {
		logger.Fatal("dispatcher error", zap.Error(err))
	}
	worker := pipeline.NewWorker(dispatcher, pipelineCfg.PollInterval, logger)
	go worker.Start(context.Background())

	orchestrator, err := pipeapp.NewOrchestrator(batchService, dispatcher, reviewer, client, jobStore, transactionRepo, invoiceRepo, worksetRepo, volumeRepo, logger)
	if err != nil {
		logger.Fatal("orchestrator error", zap.Error(err))
	}

	batchHandler, err := batchhttp.NewHandler(batchService, orchestrator, reviewer, volumeRepo, invoiceRepo, transactionRepo, auditRepo, logger)
	if err != nil {
		logger.Fatal("batch handler error", zap.Error(err))
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/batches", batchHandler)
	mux.Handle("/api/v1/batches/", batchHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	logger.Fatal("server stopped", zap.Error(server.ListenAndServe()))
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	ChargeModuleURL    string
	ChargeModuleToken  string
	ChargeRuleset      string
	PipelineConfigPath string
	JWTSecret          string
	LogLevel           string
	Development        bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		ChargeModuleURL:    getenvDefault("CHARGE_MODULE_URL", ""),
		ChargeModuleToken:  getenvDefault("CHARGE_MODULE_TOKEN", ""),
		ChargeRuleset:      getenvDefault("CHARGE_RULESET", "wrls"),
		PipelineConfigPath: getenvDefault("PIPELINE_CONFIG", ""),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		Development:        getenvDefault("LOG_MODE", "") == "development",
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.ChargeModuleURL == "" {
		log.Fatal("CHARGE_MODULE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

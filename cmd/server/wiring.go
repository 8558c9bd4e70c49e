package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/adapters/calendar"
	"github.com/ClareAI/astra-receptionist-service/internal/adapters/retrieval"
	"github.com/ClareAI/astra-receptionist-service/internal/cache"
	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/core/event"
	"github.com/ClareAI/astra-receptionist-service/internal/core/executor"
	"github.com/ClareAI/astra-receptionist-service/internal/core/reply"
	"github.com/ClareAI/astra-receptionist-service/internal/core/session"
	"github.com/ClareAI/astra-receptionist-service/internal/core/tool"
	"github.com/ClareAI/astra-receptionist-service/internal/handler"
	"github.com/ClareAI/astra-receptionist-service/internal/observability"
	"github.com/ClareAI/astra-receptionist-service/internal/repository"
	"github.com/ClareAI/astra-receptionist-service/internal/services/call"
	"github.com/ClareAI/astra-receptionist-service/internal/storage"
	"github.com/ClareAI/astra-receptionist-service/pkg/deepgram"
	"github.com/ClareAI/astra-receptionist-service/pkg/gcs"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/ClareAI/astra-receptionist-service/pkg/pubsub"
	"github.com/ClareAI/astra-receptionist-service/pkg/redis"
	"github.com/ClareAI/astra-receptionist-service/pkg/twilio"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const businessRefreshInterval = 5 * time.Minute

// components holds everything the server starts and later shuts down
type components struct {
	service  *call.Service
	handlers *handler.HandlerManager
	registry *session.Registry
	business *cache.BusinessCache
	policy   *config.PolicyWatcher
	bus      *event.DefaultEventBus

	// closers run in reverse order on shutdown
	closers []func(ctx context.Context) error
}

func (c *components) onClose(fn func(ctx context.Context) error) {
	c.closers = append(c.closers, fn)
}

// buildComponents wires the call service and its collaborators. Optional
// backends that are not configured, or fail to connect, are left out and the
// service runs degraded.
func buildComponents(ctx context.Context, cfg *config.ReceptionistConfig) (*components, error) {
	c := &components{}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	c.onClose(shutdownTracer)

	policy, err := config.NewPolicyWatcher(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	if cfg.PolicyWatch {
		if err := policy.Start(ctx); err != nil {
			logger.Base().Warn("policy hot reload disabled", zap.Error(err))
		}
	}
	c.policy = policy
	c.onClose(func(context.Context) error { return policy.Close() })

	c.bus = event.NewEventBus()
	for _, mw := range event.CreateDefaultMiddlewareChain() {
		c.bus.Use(mw)
	}
	c.onClose(func(context.Context) error { return c.bus.Close() })

	checks := map[string]handler.HealthCheck{}

	var repos repository.RepositoryManager
	if repository.IsDatabaseConfigured() {
		repos, err = repository.NewRepositoryManager()
		if err != nil {
			logger.Base().Warn("database unavailable, running without call history", zap.Error(err))
			repos = nil
		} else {
			checks["postgres"] = repos.Ping
			c.onClose(func(context.Context) error { return repos.Close() })
		}
	}

	eng, embedder := buildEngine(cfg)

	if cfg.RedisHost != "" {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Base().Warn("redis unavailable, live call registry disabled", zap.Error(err))
		} else {
			c.registry = session.NewRegistry(redisSvc, cfg.InstanceID)
			checks["redis"] = func(ctx context.Context) error {
				_, err := redisSvc.GetValue(ctx, redisSvc.GenerateKey(redis.CALL_CLEANUP, "health"))
				if err != nil && !redis.IsNotExist(err) {
					return err
				}
				return nil
			}
			c.onClose(func(context.Context) error { return redisSvc.Close() })
		}
	}

	location, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Base().Warn("unknown calendar timezone, using UTC",
			zap.String("timezone", cfg.CalendarTimezone), zap.Error(err))
		location = time.UTC
	}

	execDeps := executor.Deps{Policy: policy, Metrics: metrics, Tracer: tracer, Location: location}
	if repos != nil {
		execDeps.Contacts = retrieval.NewContactFinder(repos.Contacts())
		if cfg.GoogleClientID != "" {
			execDeps.Calendar = calendar.NewClient(calendar.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURL,
				UserID:       cfg.CalendarUserID,
			}, repos.CalendarTokens())
		}
	}
	if emails := connectEmailIndex(ctx, cfg, embedder, c); emails != nil {
		execDeps.Emails = emails
	}

	fallback := config.BusinessInfo{
		CEOName:            cfg.CEOName,
		CompanyName:        cfg.CompanyName,
		CompanyDescription: cfg.CompanyDescription,
	}
	var business call.BusinessSource = call.StaticBusiness(fallback)
	if repos != nil {
		c.business = cache.NewBusinessCache(repos.Business(), fallback)
		if err := c.business.Refresh(ctx); err != nil {
			logger.Base().Warn("business config not loaded, using environment defaults", zap.Error(err))
		}
		c.business.StartRefresh(ctx, businessRefreshInterval)
		business = c.business
	}

	deps := call.Deps{
		Store:     session.NewStore(),
		Registry:  c.registry,
		Decider:   tool.NewDecisionAdapter(eng, tool.NewRegistry(), policy, metrics),
		Executor:  executor.New(execDeps),
		Responder: reply.NewSynthesizer(eng, policy, metrics),
		Engine:    eng,
		Business:  business,
		Bus:       c.bus,
		Policy:    policy,
		Metrics:   metrics,
		Tracer:    tracer,
	}
	if repos != nil {
		deps.Records = repos.CallRecords()
	}
	telephony := twilio.NewCallService(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	if telephony.IsEnabled() {
		deps.Telephony = telephony
	}
	if archive := buildArchive(ctx, cfg, c); archive != nil {
		deps.Archive = archive
	}
	if cfg.PubSubProjectID != "" {
		ps, err := pubsub.NewPubSubService(ctx, &pubsub.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			TopicName: cfg.PubSubTopic,
			PubID:     cfg.PubSubID,
		})
		if err != nil {
			logger.Base().Warn("pubsub unavailable, call outcomes will not be published", zap.Error(err))
		} else {
			deps.Outcomes = ps
			c.onClose(func(context.Context) error { return ps.Close() })
		}
	}

	c.service, err = call.NewService(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create call service: %w", err)
	}

	handlerDeps := handler.Deps{
		Config:    cfg,
		Calls:     c.service,
		Bus:       c.bus,
		Signature: telephony,
		Metrics:   metrics,
		Gatherer:  prometheus.DefaultGatherer,
		Checks:    checks,
	}
	if cfg.TTSActive() {
		speak := deepgram.NewSpeakClient(cfg.DeepgramAPIKey, cfg.DeepgramBaseURL, cfg.DeepgramModel)
		handlerDeps.Audio = storage.NewAudioCache(speak, 0, metrics)
	}
	if repos != nil {
		handlerDeps.Records = repos.CallRecords()
	}

	c.handlers, err = handler.NewHandlerManager(handlerDeps)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Base().Info("components initialized",
		zap.String("engine_mode", cfg.EngineMode),
		zap.Bool("database", repos != nil),
		zap.Bool("registry", c.registry != nil),
		zap.Bool("calendar", execDeps.Calendar != nil),
		zap.Bool("emails", execDeps.Emails != nil),
		zap.Bool("tts", handlerDeps.Audio != nil))
	return c, nil
}

// buildEngine returns the reasoning engine and, for the LLM mode, the
// embedder used by email search
func buildEngine(cfg *config.ReceptionistConfig) (engine.Engine, engine.Embedder) {
	if cfg.EngineMode != config.EngineModeLLM {
		return engine.NewRules(), nil
	}
	llm, err := engine.NewLLM(engine.LLMConfig{
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		logger.Base().Warn("LLM engine unavailable, using rules", zap.Error(err))
		return engine.NewRules(), nil
	}
	return engine.NewRateLimited(llm, cfg.LLMRatePerSecond, cfg.LLMBurst), llm
}

func connectEmailIndex(ctx context.Context, cfg *config.ReceptionistConfig, embedder engine.Embedder, c *components) *retrieval.EmailIndex {
	if cfg.MongoURI == "" || embedder == nil {
		return nil
	}
	client, err := retrieval.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		logger.Base().Warn("mongodb unavailable, email search disabled", zap.Error(err))
		return nil
	}
	c.onClose(client.Disconnect)

	coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	return retrieval.NewEmailIndex(retrieval.WrapCollection(coll), embedder, cfg.MongoVectorIndex)
}

func buildArchive(ctx context.Context, cfg *config.ReceptionistConfig, c *components) *storage.Archive {
	switch {
	case cfg.ArchiveBucket != "":
		client, err := gcs.NewGCSClient(ctx, cfg.ArchiveBucket)
		if err != nil {
			logger.Base().Warn("gcs unavailable, calls will not be archived", zap.Error(err))
			return nil
		}
		c.onClose(func(context.Context) error { return client.Close() })
		return storage.NewGCSArchive(client)
	case cfg.ArchiveDir != "":
		return storage.NewLocalArchive(cfg.ArchiveDir)
	default:
		return nil
	}
}

// startBackground launches the sweeper and the cleanup listener
func (c *components) startBackground(ctx context.Context, cfg *config.ReceptionistConfig) error {
	if _, err := c.service.StartSweeper(ctx, cfg.SweeperSchedule, cfg.StaleCallAfter); err != nil {
		return err
	}
	if c.registry != nil {
		if err := c.service.ListenForCleanup(ctx); err != nil {
			logger.Base().Warn("cleanup broadcasts disabled", zap.Error(err))
		}
	}
	return nil
}

// shutdown drains background work and closes every backend
func (c *components) shutdown(ctx context.Context) {
	c.service.Wait()
	c.handlers.Close()
	if c.business != nil {
		c.business.Shutdown()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			logger.Base().Warn("shutdown step failed", zap.Error(err))
		}
	}
}

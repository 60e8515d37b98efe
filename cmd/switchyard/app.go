package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"switchyard/internal/admin"
	"switchyard/internal/component"
	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/internal/directory"
	"switchyard/internal/dispatch"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/internal/node/builtin"
	"switchyard/internal/node/sink"
	"switchyard/internal/source"
	"switchyard/internal/supervisor"
	"switchyard/pkg/bootstrap"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/health"
	"switchyard/pkg/metrics"
	"switchyard/pkg/ratelimit"
	"switchyard/pkg/retry"
	"switchyard/pkg/tracing"
)

// pipelineReadyPoll is how often Initialize checks declared pipelines.
const pipelineReadyPoll = 20 * time.Millisecond

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	tracer      *tracing.TracerProvider
	redis       *redis.Client
	mirror      *directory.RedisMirror
	postgres    *sql.DB
	mongoClient *mongo.Client
	mongoDB     *mongo.Database

	directory  *directory.Directory
	registry   *node.Registry
	supervisor *supervisor.Supervisor
	routers    []*dispatch.Router
	sources    []*source.KafkaSource

	server     *http.Server
	serverDone chan struct{}
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sl, ok := log.(*logger.SugaredLogger); ok {
		sl.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		serverDone:  make(chan struct{}),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.tracer, err = tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	metrics.RegisterEngineMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterAdminMetrics()
	metrics.RegisterDatabaseMetrics()

	if err := a.initStores(ctx); err != nil {
		return err
	}
	a.initDirectory()

	if err := a.InitProducer(); err != nil {
		return err
	}

	a.registry, err = builtin.NewRegistry(sink.Deps{
		Producer:       a.Producer,
		Postgres:       a.postgres,
		Mongo:          a.mongoDB,
		CircuitBreaker: a.Config.CircuitBreaker,
		Retry:          retry.FromConfig(a.Config.Broker.Kafka.Retry),
	})
	if err != nil {
		return fmt.Errorf("failed to build node registry: %w", err)
	}

	if err := a.initSupervisor(ctx); err != nil {
		return err
	}
	if err := a.initDispatchers(ctx); err != nil {
		return err
	}

	a.initServer()

	a.Logger.InfowCtx(ctx, "Application initialized",
		"pipelines", len(a.Config.Pipelines),
		"dispatchers", len(a.routers),
		"sources", len(a.sources),
	)
	return nil
}

func (a *App) initStores(ctx context.Context) error {
	var err error

	a.redis, err = a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	a.postgres, err = a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	a.mongoClient, a.mongoDB, err = a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	return nil
}

func (a *App) initDirectory() {
	var opts []directory.Option
	if a.redis != nil {
		rc := a.Config.Directory.Redis
		a.mirror = directory.NewRedisMirror(
			a.redis,
			circuitbreaker.FromSettings("directory-mirror", a.Config.CircuitBreaker),
			directory.RedisMirrorConfig{
				KeyPrefix: rc.KeyPrefix,
				Node:      a.Config.Engine.NodeName,
				QueueSize: rc.QueueSize,
			},
			a.Logger,
		)
		a.mirror.Start()
		opts = append(opts, directory.WithMirror(a.mirror))
	}
	a.directory = directory.New(a.Logger, opts...)
}

func (a *App) initSupervisor(ctx context.Context) error {
	eng := a.Config.Engine
	a.supervisor = supervisor.New(supervisor.Config{
		Registry:       a.registry,
		Directory:      a.directory,
		Logger:         a.Logger,
		BindTimeout:    eng.BindTimeout,
		RequestTimeout: eng.RequestTimeout,
		NodeBufferSize: eng.NodeBufferSize,
	})
	if err := a.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	for i := range a.Config.Pipelines {
		p := &a.Config.Pipelines[i]
		res, err := a.supervisor.Setup(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to set up pipeline %s: %w", p.PipelineID, err)
		}
		if err := res.Err(); err != nil {
			return fmt.Errorf("pipeline %s: %w", p.PipelineID, err)
		}
	}
	return a.awaitPipelines(ctx)
}

// awaitPipelines blocks until every declared pipeline is registered, so
// sources started by Run find their destinations.
func (a *App) awaitPipelines(ctx context.Context) error {
	if len(a.Config.Pipelines) == 0 {
		return nil
	}
	eng := a.Config.Engine
	wait := eng.BindTimeout + eng.RequestTimeout
	if wait <= 0 {
		wait = constants.DefaultBindTimeout + constants.DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(pipelineReadyPoll)
	defer ticker.Stop()

	for {
		statuses, err := a.supervisor.Pipelines(ctx)
		if err != nil {
			return fmt.Errorf("failed to read pipeline states: %w", err)
		}
		pending := make(map[string]bool, len(a.Config.Pipelines))
		for _, p := range a.Config.Pipelines {
			pending[p.PipelineID] = true
		}
		for _, st := range statuses {
			if !pending[st.ID] {
				continue
			}
			if st.Reason != "" {
				return fmt.Errorf("pipeline %s failed to start: %s", st.ID, st.Reason)
			}
			if st.Registered {
				delete(pending, st.ID)
			}
		}
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("pipelines not ready after %s: %d pending", wait, len(pending))
		case <-ticker.C:
		}
	}
}

func (a *App) initDispatchers(ctx context.Context) error {
	policies := dispatch.NewPolicyRegistry()

	for _, d := range a.Config.Dispatchers {
		kind := component.KindPipeline
		if d.TargetKind != "" {
			parsed, ok := component.ParseKind(d.TargetKind)
			if !ok {
				return fmt.Errorf("dispatcher %s: unknown target kind %q", d.DispatcherID, d.TargetKind)
			}
			kind = parsed
		}

		r, err := dispatch.New(dispatch.Config{
			ID:            d.DispatcherID,
			TargetKind:    kind,
			Directory:     a.directory,
			Policies:      policies,
			LookupTimeout: a.Config.Engine.LookupTimeout,
			Logger:        a.Logger,
		})
		if err != nil {
			return err
		}
		a.routers = append(a.routers, r)

		if err := r.Configure(ctx, dispatch.PolicyConfig{
			Name:     d.DispatcherID,
			Type:     d.Policy.Type,
			Settings: d.Policy.Settings,
		}); err != nil {
			return fmt.Errorf("dispatcher %s: %w", d.DispatcherID, err)
		}
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("failed to start dispatcher %s: %w", d.DispatcherID, err)
		}

		if !d.Source.Enabled() {
			continue
		}
		consumer, err := a.NewConsumer(d.Source, serviceName)
		if err != nil {
			return err
		}
		src, err := source.NewKafkaSource(d.DispatcherID, d.Source, consumer, r, a.Logger)
		if err != nil {
			return err
		}
		a.sources = append(a.sources, src)
	}
	return nil
}

func (a *App) healthCheckers() *health.CheckerRegistry {
	checkers := health.NewCheckerRegistry()

	checkers.Register(health.NewFuncChecker("engine", a.Config.Engine.RequestTimeout, func(ctx context.Context) error {
		_, err := a.supervisor.Pipelines(ctx)
		return err
	}))
	if a.redis != nil {
		// The mirror is best effort, so losing Redis only degrades the service.
		checkers.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.postgres != nil {
		checkers.Register(health.NewPostgreSQLChecker(a.postgres))
	}
	if a.mongoClient != nil {
		checkers.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	return checkers
}

func (a *App) initServer() {
	routerCfg := admin.RouterConfig{
		ServiceName: serviceName,
		Tracing:     a.tracer != nil && a.Config.Tracing.Enabled,
		Health:      a.healthCheckers(),
		Logger:      a.Logger,
		Done:        a.serverDone,
	}
	if rl := a.Config.Admin.RateLimit; rl.Enabled {
		limits := ratelimit.FromConfig(rl)
		routerCfg.RateLimit = &limits
	}

	var handler *admin.Handler
	if a.Config.Admin.Enabled {
		handler = admin.NewHandler(a.supervisor, a.directory, a.Config.Engine.RequestTimeout, a.Logger)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      admin.NewRouter(routerCfg, handler),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Starting HTTP server", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	for _, src := range a.sources {
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting source", "source", src.Name())
			return src.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.Logger.InfowCtx(ctx, "Shutdown signal received")
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return constants.ShutdownTimeout
}

// Shutdown stops the server first and the stores last so pipelines can
// drain into their sinks.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout())
	defer cancel()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
		close(a.serverDone)
		a.server = nil
	}

	err := a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		for _, r := range a.routers {
			r.Stop(ctx)
		}
		a.routers = nil

		if a.supervisor != nil {
			if err := a.supervisor.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("supervisor stop error: %w", err))
			}
			a.supervisor = nil
		}

		if a.directory != nil {
			a.directory.Stop()
			a.directory = nil
		}
		if a.mirror != nil {
			a.mirror.Close()
			a.mirror = nil
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgres, a.mongoClient)...)
		a.redis, a.postgres, a.mongoClient, a.mongoDB = nil, nil, nil, nil

		if a.tracer != nil {
			if err := a.tracer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
			a.tracer = nil
		}
		return errs
	})
	return err
}

// validateConfig checks what config.Load cannot: every pipeline against the
// node registry and every dispatcher policy, without connecting anything.
func validateConfig(cfg *config.Config) error {
	registry, err := builtin.NewRegistry(sink.Deps{})
	if err != nil {
		return err
	}

	var errs []error
	for i := range cfg.Pipelines {
		p := &cfg.Pipelines[i]
		if err := supervisor.Validate(p).Err(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline %s: %w", p.PipelineID, err))
			continue
		}
		for _, el := range p.Elements {
			if !registry.Has(el.NodeType) {
				errs = append(errs, fmt.Errorf("pipeline %s: element %s: unknown node type %q", p.PipelineID, el.ElementID, el.NodeType))
			}
		}
	}

	policies := dispatch.NewPolicyRegistry()
	for _, d := range cfg.Dispatchers {
		if d.TargetKind != "" {
			if _, ok := component.ParseKind(d.TargetKind); !ok {
				errs = append(errs, fmt.Errorf("dispatcher %s: unknown target kind %q", d.DispatcherID, d.TargetKind))
			}
		}
		if _, err := policies.Create(dispatch.PolicyConfig{
			Name:     d.DispatcherID,
			Type:     d.Policy.Type,
			Settings: d.Policy.Settings,
		}); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher %s: %w", d.DispatcherID, err))
		}
	}
	return errors.Join(errs...)
}

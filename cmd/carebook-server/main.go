package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"carebook/backend/internal/config"
	"carebook/backend/internal/metrics"
	"carebook/backend/internal/notify"
	"carebook/backend/internal/service/appointments"
	"carebook/backend/internal/store"
	"carebook/backend/internal/store/memory"
	"carebook/backend/internal/store/postgres"
	grpcTransport "carebook/backend/internal/transport/grpc"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "carebook-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "carebook-server"),
	)
	slog.SetDefault(log)

	if err := run(log, cfg); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	grpcAddr := net.JoinHostPort(cfg.GRPCHost, strconv.Itoa(cfg.GRPCPort))
	log.Info("starting",
		slog.String("grpc_addr", grpcAddr),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, "carebook")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, accounts, closeStore, err := openStore(ctx, log, cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher, err := newPublisher(log, cfg.Notify)
	if err != nil {
		return err
	}
	defer closePublisher()

	dispatcher := notify.NewDispatcher(publisher, log, notify.DispatcherOptions{
		BufferSize:     cfg.Notify.BufferSize,
		PublishTimeout: cfg.Notify.PublishTimeout,
		Observer:       collector,
	})

	hours, err := workingHours(cfg.Availability)
	if err != nil {
		return err
	}
	svc := appointments.NewService(repo, accounts,
		appointments.WithPolicy(appointments.Policy{
			CancelLockout:         cfg.Booking.CancelLockout,
			RescheduleLockout:     cfg.Booking.RescheduleLockout,
			MissedGrace:           cfg.Booking.MissedGrace,
			RequireIdempotencyKey: cfg.Booking.RequireIdempotencyKey,
		}),
		appointments.WithWorkingHours(hours),
		appointments.WithMaxAvailabilityRange(cfg.Availability.MaxRange),
		appointments.WithNotifier(dispatcher),
		appointments.WithMetrics(collector),
		appointments.WithLogger(log),
	)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcTransport.TimeoutInterceptor(requestTimeout(cfg.GRPCRequestTimeout))),
	)
	grpcTransport.RegisterAppointmentsServiceServer(grpcServer, grpcTransport.NewAppointmentsServer(svc, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", grpcAddr))
		return err
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.Info("metrics server started", slog.String("metrics_addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}

	if cfg.Booking.MissedSweepInterval > 0 {
		g.Go(func() error {
			sweepMissed(gctx, log, svc, cfg.Booking.MissedSweepInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown failed", slog.Any("err", err))
			}
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			log.Warn("notification drain incomplete", slog.Any("err", err))
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config, obs postgres.QueryObserver) (store.AppointmentRepository, store.AccountResolver, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		st := memory.New()
		return st, st, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := postgres.Open(connectCtx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, nil, err
	}
	db.AddQueryHook(postgres.QueryHook{Observer: obs})

	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
	return postgres.NewAppointmentRepo(db), postgres.NewAccountRepo(db), closeDB, nil
}

// newPublisher returns the Kafka publisher behind a circuit breaker when
// brokers are configured, and a log-only publisher otherwise.
func newPublisher(log *slog.Logger, cfg config.Notify) (notify.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Info("no brokers configured; appointment events are logged only")
		return notify.NewLogPublisher(log), func() {}, nil
	}

	kp, err := notify.NewKafkaPublisher(notify.KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic})
	if err != nil {
		return nil, nil, fmt.Errorf("kafka publisher: %w", err)
	}
	log.Info("publishing appointment events", slog.String("topic", cfg.Topic), slog.Int("brokers", len(cfg.Brokers)))

	pub := notify.NewBreakerPublisher(kp, notify.BreakerConfig{
		Name:             "kafka",
		FailureThreshold: uint32(max(cfg.BreakerThreshold, 0)),
		OpenTimeout:      cfg.BreakerTimeout,
	}, log)
	closeKafka := func() {
		if err := kp.Close(); err != nil {
			log.Warn("kafka writer close failed", slog.Any("err", err))
		}
	}
	return pub, closeKafka, nil
}

func workingHours(cfg config.Availability) (appointments.WorkingHours, error) {
	start, err := appointments.ParseClockTime(cfg.DayStart)
	if err != nil {
		return appointments.WorkingHours{}, fmt.Errorf("availability.day_start: %w", err)
	}
	end, err := appointments.ParseClockTime(cfg.DayEnd)
	if err != nil {
		return appointments.WorkingHours{}, fmt.Errorf("availability.day_end: %w", err)
	}
	h := appointments.WorkingHours{
		DayStart:    start,
		DayEnd:      end,
		SlotMinutes: cfg.SlotMinutes,
		Weekdays:    cfg.Weekdays,
		Location:    cfg.Location,
	}
	return h, h.Validate()
}

func sweepMissed(ctx context.Context, log *slog.Logger, svc *appointments.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepMissed(ctx)
			if err != nil {
				log.Warn("missed sweep failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				log.Info("marked appointments missed", slog.Int("count", n))
			}
		}
	}
}

func requestTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}

package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/config"
	"github.com/Astemirdum/library-circulation/circulation/internal/events"
	"github.com/Astemirdum/library-circulation/circulation/internal/handler"
	"github.com/Astemirdum/library-circulation/circulation/internal/metrics"
	"github.com/Astemirdum/library-circulation/circulation/internal/policy"
	"github.com/Astemirdum/library-circulation/circulation/internal/repository"
	"github.com/Astemirdum/library-circulation/circulation/internal/seed"
	"github.com/Astemirdum/library-circulation/circulation/internal/server"
	"github.com/Astemirdum/library-circulation/circulation/internal/service"
	"github.com/Astemirdum/library-circulation/circulation/migrations"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/Astemirdum/library-circulation/pkg/logger"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
)

// App is the wired dependency graph shared by the serve and seed commands.
type App struct {
	Log     *zap.Logger
	DB      *pgxpool.Pool
	Metrics *metrics.Metrics
	Service *service.Service

	producer sarama.SyncProducer
}

func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg.Log, "circulation")
	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Log: log, DB: db, Metrics: metrics.New()}
	var publisher events.Publisher = events.Noop{}
	if cfg.Kafka.Enabled() {
		a.producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			db.Close()
			return nil, err
		}
		publisher = events.NewKafkaPublisher(a.producer, cfg.Kafka.Topic, log)
	} else {
		log.Info("kafka brokers not configured, circulation events disabled")
	}

	p := cfg.Circulation
	a.Service = service.NewService(repo, log,
		service.WithPolicy(policy.Policy{
			DefaultDurationDays: p.DefaultDurationDays,
			GracePeriodDays:     p.GracePeriodDays,
			FineRatePerDay:      p.FineRatePerDay,
		}),
		service.WithRetries(p.AllocRetries, p.AdmissionRetries),
		service.WithPublisher(publisher),
		service.WithMetrics(a.Metrics),
	)
	return a, nil
}

func (a *App) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.Log.Warn("producer close", zap.Error(err))
		}
	}
	a.DB.Close()
	_ = a.Log.Sync()
}

func Run(cfg *config.Config) {
	a, err := Build(context.Background(), cfg)
	if err != nil {
		logger.NewLogger(cfg.Log, "circulation").Fatal("app build", zap.Error(err))
	}
	log := a.Log

	h := handler.New(a.Service, a.Service, a.Service, a.Metrics, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	a.Close()
	log.Info("Graceful shutdown finished")
}

// Seed loads the bundled catalog and roster, skipping whichever is non-empty.
func Seed(ctx context.Context, cfg *config.Config) error {
	a, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	data, err := seed.Default()
	if err != nil {
		return err
	}
	res, err := seed.Run(ctx, a.Service, data, a.Log)
	if err != nil {
		return err
	}
	a.Log.Info("seed finished", zap.Int("books", res.Books), zap.Int("students", res.Students))
	return nil
}

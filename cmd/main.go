package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cockroachdb"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scraping050/proyecto-garantias-sub001/internal/api"
	"github.com/scraping050/proyecto-garantias-sub001/internal/messaging"
	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
	"github.com/scraping050/proyecto-garantias-sub001/internal/storage"
)

type Config struct {
	APIConfig
	KafkaConfig
	DBConfig
	SyncConfig
	Port     int    `env:"PORT" envDefault:"8090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type APIConfig struct {
	APIBaseURL     string        `env:"API_BASE_URL,required"`
	APIToken       string        `env:"API_TOKEN"`
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"15s"`
}

type KafkaConfig struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	PushGroupPrefix  string `env:"PUSH_GROUP_PREFIX" envDefault:"notifications-sync"`
	PushTopic        string `env:"PUSH_TOPIC" envDefault:"notification-events"`
}

type DBConfig struct {
	DBConnectString string `env:"DB_CONNECT_STRING"`
	MigrationsPath  string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`
}

type SyncConfig struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	MutationRetries uint64        `env:"MUTATION_RETRIES" envDefault:"2"`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env file")
	}
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, api.WithTimeout(cfg.RequestTimeout))

	opts := []notification.EngineOption{
		notification.WithFetchTimeout(cfg.FetchTimeout),
		notification.WithMutationRetries(cfg.MutationRetries),
	}
	if cfg.BootstrapServers != "" {
		opts = append(opts, notification.WithPush(
			messaging.NewPushStream(cfg.BootstrapServers, cfg.PushGroupPrefix, cfg.PushTopic)))
	} else {
		log.Info().Msg("no kafka bootstrap servers configured, running on polling only")
	}

	var connPool *pgxpool.Pool
	if cfg.DBConnectString != "" {
		connPool = connect(cfg.DBConfig)
		opts = append(opts, notification.WithCache(storage.NewCRDBPersistence(connPool)))
	}

	engine := notification.NewEngine(client, opts...)
	handle := engine.Acquire(cfg.PollInterval)

	router := httprouter.New()
	notification.NewEndpoint(engine).Register(router)

	srv := http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	wait := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		// We received an interrupt signal, shut down.
		if err := srv.Shutdown(context.Background()); err != nil {
			// Error from closing listeners, or context timeout:
			log.Err(err).Msg("HTTP server Shutdown")
		}
		handle.Release()
		if connPool != nil {
			connPool.Close()
		}
		close(wait)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Error starting or closing listener:
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()
	log.Info().Msg(fmt.Sprintf("notifications sync started at port %d", cfg.Port))

	<-wait
}

func connect(cfg DBConfig) *pgxpool.Pool {
	runMigrations(cfg.DBConnectString, cfg.MigrationsPath)

	var connPool *pgxpool.Pool
	err := backoff.Retry(func() error {
		var err error
		connPool, err = pgxpool.Connect(context.Background(), cfg.DBConnectString)
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		log.Panic().Err(err).Msg("cannot connect")
	}
	connPool.Config().MaxConns = 5
	connPool.Config().MaxConnLifetime = time.Second * 60
	connPool.Config().MinConns = 0
	return connPool
}

func runMigrations(dbConnectString, migrationsPath string) {
	crdbMigrationString := strings.Replace(dbConnectString, "postgres", "cockroachdb", 1)
	err := backoff.Retry(func() error {
		m, err := migrate.New(
			fmt.Sprintf("%s%s", "file://", migrationsPath),
			crdbMigrationString)
		if err != nil {
			return err
		}
		if err = m.Up(); err != nil {
			if err == migrate.ErrNoChange {
				return nil
			}
			return err
		}
		log.Info().Msg("migrations ran successfully")
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		log.Panic().Err(err).Msg("cannot run migrations")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	nhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"job-scheduler/internal/dispatch"
	"job-scheduler/internal/http"
	"job-scheduler/internal/model"
	"job-scheduler/internal/scheduler"
	"job-scheduler/internal/service"
)

var version = "dev"

type Options struct {
	Listen      string `long:"listen" env:"LISTEN" description:"Address the management API listens on" default:"localhost:8080"`
	ExternalUrl string `long:"external-url" env:"EXTERNAL_URL" description:"protocol://host[:port] clients reach the API at" default:"http://localhost:8080"`

	Storage string `long:"storage" env:"STORAGE" description:"Job storage backend" choice:"memory" choice:"postgres" default:"memory"`
	DbHost  string `short:"u" long:"db-url" env:"DB_HOST" description:"Database host url"`
	DbPort  uint   `short:"p" long:"db-port" env:"DB_PORT" description:"Database port" default:"5432"`
	DbUser  string `short:"l" long:"db-login" env:"DB_USER" description:"Database user login"`
	DbName  string `short:"n" long:"db-name" env:"DB_NAME" description:"Database name"`

	Tick            time.Duration `long:"tick" env:"TICK" description:"Period between scheduler ticks" default:"1s"`
	Concurrency     int           `long:"concurrency" env:"CONCURRENCY" description:"Maximum dispatches in flight" default:"10"`
	DispatchTimeout time.Duration `long:"dispatch-timeout" env:"DISPATCH_TIMEOUT" description:"Timeout of a single target call" default:"10s"`
	MaxRetries      int           `long:"max-retries" env:"MAX_RETRIES" description:"Retries after a failed target call" default:"3"`
	BackoffBase     time.Duration `long:"backoff-base" env:"BACKOFF_BASE" description:"Pause before the first retry" default:"500ms"`
	BackoffMax      time.Duration `long:"backoff-max" env:"BACKOFF_MAX" description:"Longest pause between retries" default:"30s"`
	DispatchRate    float64       `long:"dispatch-rate" env:"DISPATCH_RATE" description:"Outbound target calls per second, 0 for unlimited" default:"0"`

	LogLevel        string        `long:"log-level" env:"LOG_LEVEL" description:"Log level" default:"info"`
	LogFormat       string        `long:"log-format" env:"LOG_FORMAT" description:"Log format" choice:"text" choice:"json" default:"text"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" description:"Time allowed for draining on shutdown" default:"30s"`
}

func configureLogging(opts Options) error {
	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if opts.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func newStorage(ctx context.Context, opts Options) (model.JobStorage, error) {
	if opts.Storage == "memory" {
		return model.NewMemoryJobStorage(), nil
	}
	if opts.DbHost == "" || opts.DbUser == "" || opts.DbName == "" {
		return nil, errors.New("postgres storage needs --db-url, --db-login and --db-name")
	}
	datasourceName := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		opts.DbHost,
		opts.DbPort,
		opts.DbUser,
		os.Getenv("POSTGRES_PASSWORD"),
		opts.DbName,
	)
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return model.NewSQLJobStorage(timeoutCtx, "postgres", datasourceName)
}

func main() {
	opts := Options{}
	_, err := flags.Parse(&opts)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(fmt.Errorf("could not parse command line args: %w", err))
	}
	if err = configureLogging(opts); err != nil {
		log.Fatal(fmt.Errorf("could not configure logging: %w", err))
	}

	background := context.Background()
	storage, err := newStorage(background, opts)
	if err != nil {
		log.Fatal(fmt.Errorf("could not create job storage: %w", err))
	}

	logger := log.NewEntry(log.StandardLogger())
	jobs := service.NewJobService(storage, logger)
	server, err := http.NewJobServer(jobs, http.ServerConfig{
		Addr:        opts.Listen,
		ExternalUrl: opts.ExternalUrl,
		Version:     version,
	})
	if err != nil {
		log.Fatal(fmt.Errorf("could not create job server: %w", err))
	}

	dispatcher := dispatch.New(dispatch.Config{
		Timeout:       opts.DispatchTimeout,
		MaxRetries:    opts.MaxRetries,
		BackoffBase:   opts.BackoffBase,
		BackoffMax:    opts.BackoffMax,
		RatePerSecond: opts.DispatchRate,
	}, logger)
	skd := scheduler.New(storage, dispatcher, scheduler.Config{
		TickInterval: opts.Tick,
		Concurrency:  opts.Concurrency,
	}, logger)
	if err = skd.Start(background); err != nil {
		log.Fatal(fmt.Errorf("could not start scheduler: %w", err))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	serverErrs := make(chan error, 1)
	go func() {
		log.WithField("addr", opts.Listen).Info("Listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nhttp.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	select {
	case sig := <-sigs:
		log.WithField("signal", sig).Info("Shutting down")
	case err = <-serverErrs:
		log.Error(fmt.Errorf("listen and serve error: %w", err))
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(background, opts.ShutdownTimeout)
	defer timeoutCancel()
	if err = server.Shutdown(timeoutCtx); err != nil {
		log.Error(fmt.Errorf("failed to shutdown server: %w", err))
	}
	if err = skd.Stop(timeoutCtx); err != nil {
		log.Error(fmt.Errorf("failed to drain scheduler: %w", err))
	}
	if closer, ok := storage.(io.Closer); ok {
		if err = closer.Close(); err != nil {
			log.Error(fmt.Errorf("failed to close job storage: %w", err))
		}
	}
}

// Command routerd serves routers over HTTP and optionally consumes their
// queues.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"gopkg.in/tomb.v2"

	"github.com/goliatone/go-repository-router/config"
	"github.com/goliatone/go-repository-router/pkg/di"
	"github.com/goliatone/go-repository-router/router"
)

var logger = loggo.GetLogger("routerd")

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	listen     string
	consume    bool
	reference  bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	f := gnuflag.NewFlagSet("routerd", gnuflag.ContinueOnError)
	f.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	f.StringVar(&opts.listen, "listen", "", "HTTP listen address, overrides the configuration")
	f.BoolVar(&opts.consume, "consume", false, "run the configured queue consumers")
	f.BoolVar(&opts.reference, "reference", false, "print the router reference and exit")
	if err := f.Parse(true, args); err != nil {
		return options{}, err
	}
	if f.NArg() > 0 {
		return options{}, errors.Errorf("unexpected arguments %v", f.Args())
	}
	return opts, nil
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "routerd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := loggo.ConfigureLoggers(cfg.Logging); err != nil {
		return errors.Annotate(err, "configuring logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	if opts.reference {
		return router.WriteReference(stdout, container.Directory())
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           container.Server().Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var consumers []worker
	if opts.consume {
		started, err := container.StartConsumers()
		if err != nil {
			return err
		}
		for _, consumer := range started {
			consumers = append(consumers, consumer)
		}
	}

	logger.Infof("listening on %s", cfg.Listen)
	return supervise(ctx, srv, consumers)
}

// server is the part of http.Server supervise drives.
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// worker is a running queue consumer.
type worker interface {
	Kill()
	Wait() error
	Dead() <-chan struct{}
}

// supervise serves srv and watches consumers until ctx is done or any of
// them fails, then shuts everything down. The consumer watchers are added
// from a goroutine the tomb already tracks, so a consumer dying early cannot
// leave the tomb dead before every goroutine is started.
func supervise(ctx context.Context, srv server, consumers []worker) error {
	var t tomb.Tomb
	t.Go(func() error {
		t.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Annotate(err, "serving http")
			}
			return nil
		})
		t.Go(func() error {
			select {
			case <-ctx.Done():
				logger.Infof("shutting down")
			case <-t.Dying():
			}
			t.Kill(nil)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		for _, consumer := range consumers {
			consumer := consumer
			t.Go(func() error {
				select {
				case <-t.Dying():
					consumer.Kill()
				case <-consumer.Dead():
				}
				return consumer.Wait()
			})
		}
		return nil
	})
	return t.Wait()
}

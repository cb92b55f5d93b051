package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/lib/solver/simplexlp"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/pipeline"
	"github.com/ohowland/cgc_plan/internal/pkg/webservice"
)

func main() {
	var (
		configPath string
		url        string
		port       string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "JSON configuration file; defaults apply when empty")
	pflag.StringVar(&url, "url", "", "listen address")
	pflag.StringVarP(&port, "port", "p", "8080", "listen port")
	pflag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.New(configPath); err != nil {
			logger.Fatal("unable to load configuration", zap.Error(err))
		}
	}

	app := webservice.New(webservice.Config{URL: url, Port: port}, logger)
	p := pipeline.New(cfg, simplexlp.New(cfg.Solver), logger)
	done, err := app.Attach(p)
	if err != nil {
		logger.Fatal("unable to attach", zap.Error(err))
	}

	if _, err := p.RunFiles(); err != nil {
		logger.Fatal("planning run failed", zap.Error(err))
	}
	p.Close()
	<-done

	srv := &http.Server{
		Addr:              app.Config.URL + ":" + app.Config.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	logger.Info("starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server shutdown")
}

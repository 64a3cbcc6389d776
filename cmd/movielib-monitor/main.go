package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"movielib/internal/config"
	"movielib/internal/hostmetrics"
	"movielib/internal/logging"
	"movielib/internal/monitor"
	"movielib/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to monitor config file")
	flag.Parse()

	cfg, err := config.LoadMonitor(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, logFile, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		panic("failed to set up logging: " + err.Error())
	}
	defer logFile.Close()

	specs := make([]supervisor.ProcessSpec, 0, len(cfg.Processes))
	for _, p := range cfg.Processes {
		specs = append(specs, supervisor.ProcessSpec{
			Name:      p.Name,
			Command:   p.Command,
			Args:      p.Args,
			Dir:       p.Dir,
			Env:       p.Env,
			Restart:   p.Restart,
			Autostart: p.Autostart,
		})
	}

	sup, err := supervisor.New(specs, supervisor.LogOptions{
		Dir:        cfg.LogDir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize supervisor")
	}

	srv, err := monitor.NewServer(cfg, sup, hostmetrics.NewCollector(cfg.DiskPath), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize monitor")
	}

	sup.StartAutostart()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("received shutdown signal")

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("monitor error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer cancel()

	stopped, err := sup.StopAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to stop processes")
	}
	logger.Info().Strs("stopped", stopped).Msg("monitor stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"robotcore/config"
	"robotcore/engine"
	"robotcore/logging"
	"robotcore/messaging"
	"robotcore/points"
	"robotcore/protocol"
	"robotcore/statecache"
	"robotcore/store"
	"robotcore/workflow"
	"robotcore/www"
)

var Version = "dev"

func main() {
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	configPath := flag.StringP("config", "c", "robotcore.yaml", "path to config file")
	writeConfig := flag.String("write-config", "", "write the effective config to this path and exit")
	logLevel := flag.String("log-level", "", "override log.level from the config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("robotcore", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	log = log.With().Str("service", "robotcore").Logger()

	opts := engine.Options{Config: cfg, Log: log}

	// Database
	var db *store.DB
	if cfg.Database.Driver != "none" {
		db, err = store.Open(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		defer db.Close()
		log.Info().Str("driver", db.Driver()).Msg("database open")

		stored, err := db.ListPoints()
		if err != nil {
			log.Warn().Err(err).Msg("load points")
		}
		opts.Points = stored
		opts.Templates = []workflow.TemplateSource{db}
		opts.Sinks = []workflow.RunSink{db.RunRecorder(cfg.Robot.ID)}
		logPointProblems(log, stored)
	}

	// Engine
	eng := engine.New(opts)
	eng.Start(context.Background())
	defer eng.Shutdown()

	// Redis state cache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis not available, running without state cache")
		} else {
			mirror := statecache.NewMirror(eng.Events, eng, statecache.NewRedisStore(redisClient, cfg.Redis.TTL), cfg.Redis.FlushInterval, log)
			mirror.Start()
			defer mirror.Stop()
			log.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
		}
	}

	// Messaging
	if cfg.Messaging.Enabled {
		msgClient := messaging.NewClient(cfg.Messaging, log)
		if err := msgClient.Connect(); err != nil {
			log.Warn().Err(err).Str("backend", cfg.Messaging.Backend).Msg("messaging connect failed")
		} else {
			defer msgClient.Close()
			src := protocol.Address{Role: protocol.RoleRobot, Device: eng.DeviceID(), Site: cfg.Messaging.Site}

			exporter := messaging.NewExporter(eng.Events, msgClient, cfg.Messaging.EventsTopic, src, log)
			exporter.Start()
			defer exporter.Stop()

			handler := messaging.NewCommandHandler(eng, msgClient, cfg.Messaging.EventsTopic, src, log)
			sub := messaging.NewSubscriber(msgClient, cfg.Messaging.CommandsTopic, handler, log)
			if err := sub.Start(); err != nil {
				log.Warn().Err(err).Str("topic", cfg.Messaging.CommandsTopic).Msg("command subscribe failed")
			} else {
				log.Info().Str("topic", cfg.Messaging.CommandsTopic).Msg("listening for commands")
			}
		}
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng, db, *configPath, log)
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("web server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("web server")
		}
	}()

	log.Info().Str("device", eng.DeviceID()).Str("version", Version).Msg("ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

func logPointProblems(log zerolog.Logger, pts []points.Point) {
	for _, p := range pts {
		if problems := points.Validate(p.ID); len(problems) > 0 {
			log.Warn().Str("point", p.ID).Strs("problems", problems).Msg("point id does not follow naming rules")
		}
	}
}

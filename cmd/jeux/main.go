// Command jeux runs the Jeux game server: clients log in with a username,
// invite one another to a game of tic-tac-toe, and play it out over a
// persistent TCP connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"jeux/internal/audit"
	"jeux/internal/bot"
	"jeux/internal/config"
	"jeux/internal/dispatch"
	"jeux/internal/player"
	"jeux/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printBanner(addr string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m           Jeux v0.1.0          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     tic-tac-toe game server    \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mlistening:\033[0m %s\n\n", addr)
}

func run() error {
	port := flag.String("p", "", "port to listen on (required)")
	flag.Parse()
	if *port == "" {
		flag.Usage()
		return fmt.Errorf("-p <port> is required")
	}

	cfgPath := "config/jeux.toml"
	if p := os.Getenv("JEUX_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// The listener and the (optional) audit sink have nothing to do with
	// each other at startup, so bring them up concurrently rather than
	// paying for the audit DB round-trip before the port is even open.
	var ln net.Listener
	var sink *audit.Sink
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		l, err := net.Listen("tcp", ":"+*port)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		ln = l
		return nil
	})
	g.Go(func() error {
		if cfg.Audit.DSN == "" {
			return nil
		}
		s, err := audit.NewSink(gctx, cfg.Audit, log)
		if err != nil {
			return fmt.Errorf("start audit sink: %w", err)
		}
		sink = s
		return nil
	})
	if err := g.Wait(); err != nil {
		if ln != nil {
			ln.Close()
		}
		return err
	}
	defer ln.Close()
	if sink != nil {
		defer sink.Close()
	}

	printBanner(ln.Addr().String())

	sessions := session.NewRegistry(cfg.Network.MaxSessions)
	players := player.NewRegistry()
	if sink != nil {
		sessions.SetRecorder(sink)
	}
	var inflight sync.WaitGroup

	if profiles, err := bot.LoadProfiles(cfg.Bot.ManifestPath); err != nil {
		log.Warn("bot manifest load failed, running without a practice bot", zap.Error(err))
	} else if len(profiles) > 0 {
		if err := bot.Start(sessions, players, &inflight, profiles, log); err != nil {
			log.Warn("bot startup failed, running without a practice bot", zap.Error(err))
		}
	}

	// Only SIGHUP triggers a graceful shutdown; no other signal is handled
	// specially.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	shuttingDown := make(chan struct{})
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-shuttingDown:
					return
				default:
				}
				log.Warn("accept failed", zap.Error(err))
				continue
			}
			go dispatch.Serve(conn, sessions, players, &inflight, log)
		}
	}()

	log.Info("jeux server ready", zap.String("addr", ln.Addr().String()))
	<-sighup

	log.Info("SIGHUP received, shutting down")
	close(shuttingDown)
	ln.Close()
	<-acceptDone
	sessions.ShutdownAll()
	sessions.WaitForEmpty()
	inflight.Wait()
	log.Info("jeux server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

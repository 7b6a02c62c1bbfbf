package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arenagame/client"
	"arenagame/protocol"
	"arenagame/server"
	"arenagame/utils"
)

const defaultURL = "ws://localhost:3000/ws"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "server" {
		if err := server.Run(os.Args[1:]); err != nil {
			fatal(err)
		}
		return
	}

	cfg, err := utils.LoadConfig("config.toml")
	if err != nil {
		fatal(err)
	}
	log, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		fatal(err)
	}
	defer log.Sync()

	url := defaultURL
	if len(os.Args) > 2 && os.Args[1] == "bot" {
		url = os.Args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, url, protocol.JSON, log.Named("bot"))
	if err != nil {
		log.Warn("dial failed, trying to spin up server manually", zap.Error(err))

		go func() {
			if err := server.Run(nil); err != nil {
				log.Fatal("server", zap.Error(err))
			}
			log.Fatal("server shutdown")
		}()

		// TODO: poll the listener instead of sleeping once Run reports readiness.
		time.Sleep(50 * time.Millisecond)
		c, err = client.Dial(ctx, url, protocol.JSON, log.Named("bot"))
		if err != nil {
			log.Fatal("dial", zap.Error(err))
		}
	}
	defer c.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Run(ctx)
	})
	g.Go(func() error {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		return c.Wander(ctx, rng, 100*time.Millisecond)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("bot", zap.Error(err))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

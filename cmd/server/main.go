package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"wodserver/internal/auth"
	"wodserver/internal/config"
	"wodserver/internal/protocol"
	"wodserver/internal/queue"
	"wodserver/internal/registry"
	"wodserver/internal/server"
	"wodserver/internal/session"
	"wodserver/internal/store"
)

const smtpHost = "smtp.gmail.com"
const smtpPort = 587

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.LogConfig()

	log.Printf("%s v%s starting up...", cfg.ServerName, cfg.ServerVersion)

	mailer := store.NewSMTPMailer(cfg, smtpHost, smtpPort)
	db, err := store.Open(cfg, mailer)
	if err != nil {
		log.Fatalf("Failed to open user store: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisEnabled {
		cache = redis.NewClient(&redis.Options{
			Addr: net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			DB:   cfg.RedisDB,
		})
	}

	online := registry.NewOnline()
	rooms := registry.NewRooms()
	pending := registry.NewPendingCodes(cfg.PendingCodeTTL, cache)
	duelQueue := queue.NewMailbox()
	mixedQueues := queue.NewMixedQueues()
	codec := protocol.Codec{}

	startSession := session.New(codec, db, online)

	deps := server.Deps{
		Store:           db,
		Online:          online,
		Rooms:           rooms,
		Auth:            auth.Deps{Store: db, Pending: pending},
		DuelQueue:       duelQueue,
		MixedQueues:     mixedQueues,
		Codec:           codec,
		ProtocolVersion: cfg.ProtocolVersion,
	}

	// The matcher/sweeper supervisors and the accept loop run under one
	// errgroup, cancelled together on shutdown signal, per la2go's
	// "run all servers + managers in parallel" errgroup.WithContext shape.
	runCtx, cancelRun := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return queue.DuelMatcher(gctx, duelQueue, online, codec, startSession) })
	g.Go(func() error { return queue.MixedMatcher(gctx, mixedQueues, online, codec, startSession) })
	g.Go(func() error { return queue.RoomSweeper(gctx, rooms, online, codec, startSession) })

	listener, err := net.Listen("tcp", cfg.GetListenAddress())
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.GetListenAddress(), err)
	}

	shutdown := make(chan struct{})
	g.Go(func() error { acceptLoop(listener, deps, shutdown); return nil })

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("%s v%s ready, listening on %s", cfg.ServerName, cfg.ServerVersion, cfg.GetListenAddress())
	log.Println("Press Ctrl+C to shutdown")

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	cancelRun()
	performGracefulShutdown(cfg, listener, shutdown, db)

	if err := g.Wait(); err != nil {
		log.Printf("supervisor error: %v", err)
	}
}

// acceptLoop runs the raw-TCP accept loop of spec.md §6, replacing the
// teacher's websocket-upgrade HTTP handler: every accepted connection is
// dispatched to its own goroutine via server.Deps.HandleConnection.
func acceptLoop(listener net.Listener, deps server.Deps, shutdown chan struct{}) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-shutdown:
				return
			default:
				log.Printf("accept error: %v", err)
				continue
			}
		}
		go deps.HandleConnection(nc)
	}
}

// performGracefulShutdown keeps the teacher's staged-shutdown idiom
// (cmd/server/main.go's performGracefulShutdown), adapted from an HTTP
// server's Shutdown to closing the raw TCP listener and the store.
func performGracefulShutdown(cfg *config.Config, listener net.Listener, shutdown chan struct{}, db *store.Store) {
	log.Printf("%s v%s shutting down...", cfg.ServerName, cfg.ServerVersion)

	log.Println("[1/3] Stopping new connections...")
	close(shutdown)
	listener.Close()

	_, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSecs)*time.Second)
	defer cancel()

	log.Println("[2/3] Letting in-flight sessions drain...")
	time.Sleep(500 * time.Millisecond)

	log.Println("[3/3] Closing store connection...")
	if err := db.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}

	log.Printf("%s v%s offline.", cfg.ServerName, cfg.ServerVersion)
}

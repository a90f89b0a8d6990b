package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ferrun/loom/internal/config"
	"github.com/ferrun/loom/internal/eventlog"
	"github.com/ferrun/loom/internal/session"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var (
		storageRoot = flag.String("storage", "", "storage root (defaults to config)")
		sessionID   = flag.String("session", "", "session ID (defaults to newest session)")
		agentID     = flag.String("agent", "", "filter by agent ID")
		eventType   = flag.String("type", "", "filter by event type")
		level       = flag.String("level", "", "filter by log level")
		follow      = flag.Bool("follow", false, "keep streaming new events (tail -f)")
		recent      = flag.Int("recent", 0, "print the last N events and exit")
		summary     = flag.Bool("summary", false, "print a log summary and exit")
	)
	flag.Parse()

	logger := zap.NewNop()

	root := *storageRoot
	if root == "" {
		cfgPath := os.Getenv("CONFIG_PATH")
		if cfgPath == "" {
			cfgPath = "configs/loom.json"
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			cfg = config.Default()
		}
		root = cfg.StorageRoot
	}

	registry, err := session.NewRegistry(root, 7, false, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage %s: %v\n", root, err)
		os.Exit(1)
	}

	id := *sessionID
	if id == "" {
		latest := registry.ListSessions("", 1)
		if len(latest) == 0 {
			fmt.Fprintln(os.Stderr, "no sessions found")
			os.Exit(1)
		}
		id = latest[0].SessionID
	}

	streamer := eventlog.NewStreamer(registry.SessionDir(id))

	if *summary {
		sum := streamer.Summarize()
		fmt.Printf("session %s: %d events, %d errors, agents %v\n",
			id, sum.TotalEvents, sum.ErrorCount, sum.Agents)
		for name, count := range sum.EventTypes {
			fmt.Printf("  %-24s %d\n", name, count)
		}
		return
	}

	if *recent > 0 {
		for _, ev := range streamer.Recent(*recent, *agentID) {
			fmt.Printf("%s [%s] %s %s\n",
				ev.Timestamp.Format("15:04:05.000"), ev.Level, ev.Type, ev.Message)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	filter := eventlog.Filter{
		AgentID: *agentID,
		Type:    eventlog.EventType(*eventType),
		Level:   eventlog.Level(*level),
	}
	for frame := range streamer.Stream(ctx, filter, *follow) {
		fmt.Print(frame)
	}
}

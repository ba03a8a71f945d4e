package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/b1naryth1ef/dirpull"
	"github.com/b1naryth1ef/dirpull/logging"
	flag "github.com/spf13/pflag"
)

var workers = flag.Int("workers", dirpull.DefaultWorkers, "number of connections served at once")
var queueSize = flag.Int("queue", dirpull.DefaultQueueSize, "accepted connections allowed to wait for a worker")
var root = flag.String("root", "", "serve paths relative to this directory instead of the working directory")
var requestLog = flag.String("request-log", dirpull.DefaultRequestLog, "append-only request log file")
var statusAddr = flag.String("status-addr", "", "address for the HTTP status and metrics endpoint (disabled when empty)")
var logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")
var logFormat = flag.String("log-format", "console", "log format (console, json)")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	err := cli()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func cli() error {
	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		return nil
	}

	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", args[0])
	}

	err = logging.Init(logging.Config{Level: *logLevel, Format: *logFormat})
	if err != nil {
		return err
	}
	defer logging.Sync()

	server, err := dirpull.NewServer(dirpull.ServerOpts{
		Addr:           fmt.Sprintf(":%d", port),
		Workers:        *workers,
		QueueSize:      *queueSize,
		Root:           *root,
		RequestLogPath: *requestLog,
		StatusAddr:     *statusAddr,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.Run(ctx)
	if err != nil {
		return fmt.Errorf("error starting server on %d: %w", port, err)
	}
	return nil
}

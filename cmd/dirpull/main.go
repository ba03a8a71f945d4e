package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/b1naryth1ef/dirpull"
	"github.com/b1naryth1ef/dirpull/logging"
	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"
)

var via = flag.String("via", "", "forward the connection through this ssh host (config alias or user@host[:port])")
var downloadDir = flag.String("download-dir", ".", "directory downloaded bundles are saved under")
var maxFileSize = flag.String("max-file-size", "0", "refuse bundles declaring a file larger than this (e.g. 4GB, 0 = no limit)")
var logLevel = flag.String("log-level", "warn", "log level (debug, info, warn, error)")

func makeClientOpts(host string, port uint64) dirpull.ClientOpts {
	limit, err := humanize.ParseBytes(*maxFileSize)
	if err != nil {
		log.Panicf("Failed to parse --max-file-size: %v", err)
	}

	return dirpull.ClientOpts{
		Addr:        net.JoinHostPort(host, strconv.FormatUint(port, 10)),
		Via:         *via,
		DownloadDir: *downloadDir,
		MaxFileSize: int64(limit),
		In:          os.Stdin,
		Out:         os.Stdout,
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <host> <port>\n", os.Args[0])
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
	if len(args) != 2 {
		flag.Usage()
		return nil
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", args[1])
	}

	err = logging.Init(logging.Config{Level: *logLevel})
	if err != nil {
		return err
	}
	defer logging.Sync()

	client := dirpull.NewClient(makeClientOpts(args[0], port))
	return client.Run(context.Background())
}

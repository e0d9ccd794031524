// Command singstorage-cat connects to a local singd and performs a
// single read, write, or delete against a named object, printing or
// consuming bytes on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	singstorage "github.com/HKUST-SING/singstorage-go"
	"github.com/HKUST-SING/singstorage-go/internal/logging"
)

func main() {
	var (
		mode     = flag.String("mode", "", "Operation to perform: read, write, or delete")
		path     = flag.String("path", "", "Object path")
		user     = flag.String("user", "", "singd user name")
		password = flag.String("password", "", "singd credential (hashed client-side before AUTH)")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if *mode == "" || *path == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: singstorage-cat -mode=read|write|delete -path=/obj -user=NAME [-password=SECRET]")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client, err := singstorage.Connect(ctx, *user, *password)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("connected", "user", *user)

	switch *mode {
	case "read":
		err = runRead(ctx, client, *path)
	case "write":
		err = runWrite(ctx, client, *path)
	case "delete":
		err = client.Delete(ctx, *path)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil {
		logger.Error("operation failed", "mode", *mode, "path", *path, "error", err)
		os.Exit(1)
	}

	snap := client.Metrics().Snapshot()
	logger.Debug("operation complete", "total_ops", snap.TotalOps, "total_bytes", snap.TotalBytes)
}

func runRead(ctx context.Context, client *singstorage.Client, path string) error {
	stream, err := client.Read(ctx, path)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, done, err := stream.Next()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if _, err := os.Stdout.Write(chunk); err != nil {
			return err
		}
	}
}

func runWrite(ctx context.Context, client *singstorage.Client, path string) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := client.Write(ctx, path, data); err != nil {
		return err
	}
	logging.Default().Debug("write complete", "path", path, "bytes", len(data), "elapsed", time.Since(start))
	return nil
}

// Command kvs-server runs the key-value store's network listener,
// per spec.md §6.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kvslab/kvs/internal/engine"
	"github.com/kvslab/kvs/internal/pool"
	"github.com/kvslab/kvs/internal/server"
)

const defaultAddr = "127.0.0.1:4000"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr       string
		engineName string
		workers    int
	)

	cmd := &cobra.Command{
		Use:           "kvs-server",
		Short:         "kvs-server serves a key-value store over TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, engineName, workers)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address, IP:PORT")
	cmd.Flags().StringVar(&engineName, "engine", "", "storage engine: kvs or sled (default: autodetect, else kvs)")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "worker pool size")
	return cmd
}

func run(addr, engineName string, workers int) error {
	logger := newLogger()

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	kind, err := engine.SelectEngine(dir, engineName)
	if err != nil {
		level.Error(logger).Log("msg", "engine selection failed", "err", err)
		return err
	}

	reg := prometheus.NewRegistry()
	eng, err := engine.Open(kind, dir, reg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "engine open failed", "err", err)
		return err
	}
	defer eng.Close()

	workerPool := pool.New(workers, reg, logger)
	defer workerPool.Shutdown()

	srv, err := server.New(addr, eng, workerPool, logger)
	if err != nil {
		level.Error(logger).Log("msg", "bind failed", "addr", addr, "err", err)
		return err
	}
	defer srv.Close()

	level.Info(logger).Log("msg", "kvs-server listening", "addr", srv.Addr(), "engine", kind, "version", version)
	return srv.Serve()
}

func newLogger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, levelOption())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return logger
}

// levelOption reads KVS_LOG (debug|info|warn|error), defaulting to info.
func levelOption() level.Option {
	switch os.Getenv("KVS_LOG") {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

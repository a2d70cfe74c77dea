package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"io"
	"lukas/inventory/internal/config"
	"lukas/inventory/internal/server"
	"lukas/inventory/internal/stock"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "inventory-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("inventory-server", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")
	port := flags.Uint16("port", 0, "listen port, overrides the config file")
	dbPath := flags.String("db", "", "SQLite database path, overrides the config file")
	seed := flags.Bool("seed", false, "insert fixture groups and products on startup")
	console := flags.Bool("console", true, "read console commands (connections, stop) from stdin")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("port") {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := stock.OpenSQLite(ctx, logger, cfg.StorageOptions())
	if err != nil {
		return err
	}
	defer store.Close()
	if *seed {
		if err := stock.Seed(ctx, store); err != nil {
			return err
		}
	}

	codec, err := cfg.NewCodec()
	if err != nil {
		return err
	}
	serverConfig, connConfig := cfg.ServerOptions()
	srv := server.NewServer(logger, serverConfig, connConfig, codec, store)
	if err := srv.Start(); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	if *console {
		group.Go(func() error {
			return readConsole(ctx, os.Stdin, os.Stdout, srv)
		})
	}
	group.Go(func() error {
		select {
		case <-ctx.Done():
		case <-srv.Done():
			logger.Warn("server stopped accepting connections")
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
			return err
		}
		return errServerStopped
	})
	err = group.Wait()
	if errors.Is(err, errStopRequested) || errors.Is(err, errServerStopped) {
		return nil
	}
	return err
}

var (
	errStopRequested = errors.New("stop requested from console")
	errServerStopped = errors.New("server stopped")
)

// readConsole serves console commands until stdin closes, ctx ends or the
// operator types stop. Closing stdin leaves the server running.
func readConsole(ctx context.Context, in io.Reader, out io.Writer, srv *server.Server) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
			case "connections":
				fmt.Fprintln(out, srv.ConnectionCount())
			case "stop":
				return errStopRequested
			default:
				fmt.Fprintln(out, "commands: connections, stop")
			}
		}
	}
}

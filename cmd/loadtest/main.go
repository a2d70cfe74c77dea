package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"lukas/inventory/internal/client"
	"lukas/inventory/internal/config"
	"lukas/inventory/internal/packet"
	"os"
	"sync/atomic"
	"time"
)

type result struct {
	succeeded atomic.Int64
	failed    atomic.Int64
}

func runClient(ctx context.Context, logger *zap.Logger, cfg client.Config, codec *packet.Codec, productID int64, rounds int, res *result) error {
	c := client.New(logger, cfg, codec)
	defer c.Stop(ctx)
	for i := 0; i < rounds; i++ {
		ok, err := c.IncreaseProductQuantity(ctx, productID, 1)
		if errors.Is(err, client.ErrConnectionUnavailable) {
			return err
		}
		if err != nil || !ok {
			logger.Debug("round trip failed", zap.Int("round", i), zap.Bool("ok", ok), zap.Error(err))
			res.failed.Add(1)
			continue
		}
		res.succeeded.Add(1)
	}
	if _, err := c.ProductByID(ctx, productID); err != nil {
		res.failed.Add(1)
		return fmt.Errorf("client %s: reading product: %w", c.ID(), err)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "inventory-loadtest:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("inventory-loadtest", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")
	addr := flags.String("addr", "", "server address, overrides the config file")
	numClients := flags.Int("clients", 4, "number of concurrent clients")
	rounds := flags.Int("rounds", 1000, "round trips per client")
	productID := flags.Int64("product", 1, "product whose quantity every client increments")
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
	if *addr != "" {
		cfg.Client.Address = *addr
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	codec, err := cfg.NewCodec()
	if err != nil {
		return err
	}
	ctx := context.Background()

	probe := client.New(logger, cfg.ClientOptions(), codec)
	before, err := probe.ProductByID(ctx, *productID)
	if err != nil {
		probe.Close()
		return fmt.Errorf("reading product %d (start the server with --seed?): %w", *productID, err)
	}

	res := &result{}
	start := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < *numClients; i++ {
		group.Go(func() error {
			return runClient(groupCtx, logger, cfg.ClientOptions(), codec, *productID, *rounds, res)
		})
	}
	err = group.Wait()
	elapsed := time.Since(start)

	after, probeErr := probe.ProductByID(ctx, *productID)
	probe.Close()
	if err != nil {
		return err
	}
	if probeErr != nil {
		return probeErr
	}

	logger.Info("load test finished",
		zap.Int("clients", *numClients),
		zap.Int64("succeeded", res.succeeded.Load()),
		zap.Int64("failed", res.failed.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Int64("quantityBefore", before.Quantity),
		zap.Int64("quantityAfter", after.Quantity))
	if lost := res.succeeded.Load() - (after.Quantity - before.Quantity); lost != 0 {
		return fmt.Errorf("quantity drifted by %d from the acknowledged increments", lost)
	}
	return nil
}

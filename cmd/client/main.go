package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/pflag"
	"lukas/inventory/internal/client"
	"lukas/inventory/internal/config"
	"lukas/inventory/internal/packet"
	"os"
	"strings"
)

var errNotSuccess = errors.New("request was not successful")

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, errNotSuccess) {
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, "inventory-client:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("inventory-client", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: inventory-client [flags] COMMAND [JSON_PAYLOAD]")
		fmt.Fprintln(os.Stderr, "example: inventory-client INSERT_GROUP '{\"name\":\"G1\",\"description\":\"d\"}'")
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")
	addr := flags.String("addr", "", "server address, overrides the config file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		return errors.New("expected a command and an optional payload")
	}
	command, ok := packet.ParseCommand(strings.ToUpper(flags.Arg(0)))
	if !ok {
		return fmt.Errorf("unknown command %q", flags.Arg(0))
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

	c := client.New(logger, cfg.ClientOptions(), codec)
	defer c.Close()
	ctx := context.Background()
	if command == packet.CommandStop {
		return c.Stop(ctx)
	}
	reply, err := c.Do(ctx, command, flags.Arg(1))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", reply.Status, reply.Payload)
	if reply.Status != packet.StatusSuccess {
		return errNotSuccess
	}
	return nil
}

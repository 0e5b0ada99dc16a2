package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lhdbsbz/chatrelay/internal/config"
	"github.com/lhdbsbz/chatrelay/internal/gateway"
	"github.com/lhdbsbz/chatrelay/internal/llm"
	"github.com/prometheus/client_golang/prometheus"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("chatrelay v%s\n", version)
	case "serve":
		if err := serve(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := initConfig(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("chatrelay - WebSocket chat relay for an AI answering service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chatrelay serve [--config path]   Start the relay")
	fmt.Println("  chatrelay init [--config path]    Write an example config")
	fmt.Println("  chatrelay version                 Show version info")
}

func configFlag(name string, args []string) (string, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	path := flags.String("config", "", "config file (default $CHATRELAY_HOME/config.yaml)")
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	return config.ResolveConfigPath(*path), nil
}

func initConfig(args []string) error {
	path, err := configFlag("init", args)
	if err != nil {
		return err
	}
	if err := config.CreateFromExample(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func serve(args []string) error {
	cfgPath, err := configFlag("serve", args)
	if err != nil {
		return err
	}

	// Setup structured logging
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	cfg, err := config.Load(cfgPath)
	watch := err == nil
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		slog.Warn("config not found, using defaults", "path", cfgPath)
		cfg = config.DefaultConfig()
	}
	config.Set(cfg)
	level.Set(cfg.Log.SlogLevel())
	slog.Info("chatrelay starting", "version", version, "config", cfgPath, "backend", cfg.Backend.URL)

	answers := llm.NewHTTPClient(cfg.Backend.URL, cfg.Backend.Timeout)
	config.RegisterOnReload(func(c *config.Config) {
		answers.SetEndpoint(c.Backend.URL, c.Backend.Timeout)
		level.Set(c.Log.SlogLevel())
		slog.Info("backend endpoint updated", "url", c.Backend.URL, "timeout", c.Backend.Timeout)
	})

	// Start with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	if watch {
		go config.Watch(ctx, cfgPath)
	}

	reg := prometheus.NewRegistry()
	srv := gateway.NewServer(cfg, answers, reg)
	return srv.Start(ctx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	saicache "github.com/saiset-co/sai-offline-cache"
)

func main() {
	configPath := flag.String("config", "./config.yml", "path to the service configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, err := saicache.NewService(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service: %v\n", err)
		os.Exit(1)
	}

	if err := service.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
		os.Exit(1)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-signalChan:
	case <-ctx.Done():
	}

	if err := service.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}

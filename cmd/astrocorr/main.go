package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/colibri-telescope/astrocorr/cmd/astrocorr/app"
	"github.com/colibri-telescope/astrocorr/internal/offset"
)

func main() {
	var logLevel slog.LevelVar
	// stdout carries only the offset
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var (
		configPath string
		test       bool
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.BoolVar(&test, "t", false, "Test mode: debug logging and a diagnostic image")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-c config.yaml] [-t] <image> <ra> <dec>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	fail := func(msg string, args ...any) {
		fmt.Println(offset.FailSafe)
		logger.Error(msg, args...)
		os.Exit(1)
	}

	req, err := parseArgs(flag.Args())
	if err != nil {
		flag.Usage()
		fail(err.Error())
	}
	req.Test = test

	config := app.NewConfig()
	if configPath != "" {
		if config, err = app.LoadConfig(configPath); err != nil {
			fail(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		}
	} else if err = config.Validate(); err != nil {
		fail(err.Error())
	}

	level, _ := config.Settings.Level()
	if test {
		level = slog.LevelDebug
	}
	logLevel.Set(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, req, os.Stdout, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}

func parseArgs(args []string) (app.Request, error) {
	if len(args) != 3 {
		return app.Request{}, errors.New("expected an image path and the target RA and Dec in decimal degrees")
	}

	ra, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return app.Request{}, fmt.Errorf("invalid RA %q: %w", args[1], err)
	}
	dec, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return app.Request{}, fmt.Errorf("invalid Dec %q: %w", args[2], err)
	}

	return app.Request{
		ImagePath: args[0],
		Target:    offset.Coordinates{RA: ra, Dec: dec},
	}, nil
}

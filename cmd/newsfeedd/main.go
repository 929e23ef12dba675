package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KonishchevDmitry/newsfeedd/internal/bridge"
	"github.com/KonishchevDmitry/newsfeedd/internal/config"
	"github.com/KonishchevDmitry/newsfeedd/internal/engine"
	"github.com/KonishchevDmitry/newsfeedd/pkg/fetch"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/server"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	var (
		configPath string
		develMode  bool
	)

	command := &cobra.Command{
		Use:           "newsfeedd",
		Short:         "Polls news feeds and pushes their items to display consumers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, args []string) error {
			return run(command.Context(), configPath, develMode)
		},
	}
	command.Flags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	command.Flags().BoolVar(&develMode, "devel", false, "development mode")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s.\n", err)
		return 1
	}

	return 0
}

func run(ctx context.Context, configPath string, develMode bool) error {
	logger, err := newLogger(develMode)
	if err != nil {
		return fmt.Errorf("failed to initialize the logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx = logging.WithLogger(ctx, logger)

	settings := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = *loaded
	}

	sources := make([]source.Descriptor, 0, len(settings.Feeds))
	for _, feed := range settings.Feeds {
		sources = append(sources, feed.Descriptor())
	}

	qr := image.NewQRGenerator(settings.Images.Size)
	messages := bridge.New(bridge.DefaultSize)
	newsEngine := engine.New(engine.Options{
		ReloadInterval: settings.ReloadInterval,
		EnrichItems:    settings.Images.Enabled,
		Enrich:         settings.EnrichOptions(),
		Sources:        sources,
	}, fetch.NewFetcher(settings.FetchOptions()...), qr, messages)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var waitGroup conc.WaitGroup
	defer waitGroup.Wait()

	waitGroup.Go(func() {
		newsEngine.Run(ctx)
	})

	err = server.New(messages, newsEngine, qr, newsEngine).Serve(ctx, settings.FeedsAddr, settings.MetricsAddr)
	cancel()

	return err
}

func newLogger(develMode bool) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if develMode {
		config = zap.NewDevelopmentConfig()
	}
	config.DisableStacktrace = !develMode

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

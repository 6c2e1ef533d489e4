package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/live-quiz/internal/client"
	"github.com/gokatarajesh/live-quiz/internal/client/remote"
	"github.com/gokatarajesh/live-quiz/internal/config"
	"github.com/gokatarajesh/live-quiz/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	serverURL       string
	strategy        string
	confirm         bool
	stay            bool
	questionSeconds int
	pollInterval    time.Duration
	retryBase       time.Duration
	retryMax        time.Duration
	httpTimeout     time.Duration
	logLevel        string
}

func newRootCmd() *cobra.Command {
	cfg, err := config.Load(context.Background())
	if err != nil {
		cfg = &config.App{}
	}

	opts := options{
		serverURL:       cfg.Client.ServerURL,
		pollInterval:    cfg.Client.PollInterval,
		retryBase:       cfg.Client.RetryBase,
		retryMax:        cfg.Client.RetryMax,
		httpTimeout:     cfg.Client.HTTPTimeout,
		questionSeconds: cfg.Quiz.DefaultQuestionSeconds,
		logLevel:        cfg.LogLevel,
	}

	cmd := &cobra.Command{
		Use:   "quizclient",
		Short: "Headless participant for a live admin-paced quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.serverURL, "server", opts.serverURL, "session authority base URL")
	flags.StringVar(&opts.strategy, "answer", "first", "answer strategy: first, random, correct or none")
	flags.BoolVar(&opts.confirm, "confirm", true, "confirm submits that leave questions unanswered")
	flags.BoolVar(&opts.stay, "stay", false, "keep playing after results are delivered")
	flags.IntVar(&opts.questionSeconds, "question-seconds", opts.questionSeconds, "per-question limit when the bank sets none")
	flags.DurationVar(&opts.pollInterval, "poll", opts.pollInterval, "status poll interval")
	flags.DurationVar(&opts.retryBase, "retry-base", opts.retryBase, "first delivery retry delay")
	flags.DurationVar(&opts.retryMax, "retry-max", opts.retryMax, "largest delivery retry delay")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level")
	return cmd
}

func run(ctx context.Context, opts options) error {
	strategy, err := parseStrategy(opts.strategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := logging.New("quizclient", "cli", opts.logLevel)
	authority := remote.New(opts.serverURL, &http.Client{Timeout: opts.httpTimeout}, logger)
	pres := newConsolePresenter(logger, strategy, opts.confirm)

	runner := client.NewRunner(authority, pres, client.Options{
		PollInterval:    opts.pollInterval,
		QuestionSeconds: opts.questionSeconds,
		RetryBase:       opts.retryBase,
		RetryMax:        opts.retryMax,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return authority.Listen(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case choice := <-pres.choices:
				if err := runner.SelectOption(ctx, choice); err != nil && !errors.Is(err, context.Canceled) {
					logger.Debug().Err(err).Int("option", choice).Msg("answer not recorded")
				}
			case err := <-pres.delivered:
				if err != nil {
					return fmt.Errorf("deliver results: %w", err)
				}
				if !opts.stay {
					cancel()
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("client stopped")
		return err
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"sellerlicense/internal/config"
	apperrors "sellerlicense/internal/errors"
	"sellerlicense/internal/infrastructure"
	"sellerlicense/internal/license"
	"sellerlicense/internal/storage"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the licensectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "licensectl",
		Short:        "Manage the license catalog and activation",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	cmd.AddCommand(
		newStatusCommand(opts),
		newCatalogCommand(opts),
		newActivateCommand(opts),
		newDeactivateCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newReportCommand(opts),
	)
	return cmd
}

// session is an engine opened over the configured store.
type session struct {
	engine *license.Engine
	store  storage.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	store, err := storage.Open(ctx, cfg.Storage, infrastructure.WithComponent(logger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	engine, err := license.NewEngine(license.Options{
		Store:       store,
		KeyPrefix:   cfg.License.KeyPrefix,
		DisableSeed: !cfg.License.SeedDefault,
		DeviceID:    infrastructure.DeviceID(cfg.License.AppID),
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := engine.Start(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &session{engine: engine, store: store}, nil
}

// withSession opens a session for the duration of fn.
func withSession(opts *rootOptions, fn func(ctx context.Context, cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := infrastructure.ContextWithTraceID(cmd.Context())
		s, err := openSession(ctx, cmd, opts)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, cmd, s, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resultError turns a failed engine result into a command error.
func resultError(r license.Result) error {
	if r.OK {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return apperrors.NewValidationError(r.Message)
}

var timeNow = time.Now

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatrelay/internal/app"
	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/directory"
	applog "github.com/vovakirdan/chatrelay/internal/log"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Real-time room chat relay over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&opts.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.Store.Driver, "store", "", "message store driver (memory, redis, badger)")
	flags.StringVar(&opts.overrides.Broadcast.Driver, "broadcast", "", "broadcast driver (local, redis, nats)")

	root.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newRoomsCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// load resolves configuration and the logger for any subcommand.
func (o *rootOptions) load() (*config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.UpdateFrom(o.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, applog.New(cfg.LogLevel, cfg.LogFormat), nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatrelay server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		claims auth.Claims
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed token for development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			jwtCfg := app.JWTConfig(cfg)
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}

			token, err := auth.GenerateToken(jwtCfg, claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&claims.UserID, "user-id", 0, "user id (required)")
	cmd.Flags().StringVar(&claims.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&claims.LastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&claims.Admin, "admin", false, "grant the admin claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt_ttl)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newRoomsCmd(opts *rootOptions) *cobra.Command {
	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "Manage rooms in the directory",
	}

	var participants []int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room with the given participants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			dir, err := directory.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open directory: %w", err)
			}
			defer dir.Close()

			room, err := dir.CreateRoom(cmd.Context(), participants...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room %d participants %v\n", room.ID, room.Participants)
			return nil
		},
	}
	create.Flags().Int64SliceVar(&participants, "participant", nil, "participant user id (repeatable)")
	_ = create.MarkFlagRequired("participant")

	rooms.AddCommand(create)
	return rooms
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	hist := &cobra.Command{
		Use:   "history",
		Short: "Maintain room message logs",
	}

	var roomID int64
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the message log of a room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			roomLog, closeStore, err := app.OpenHistory(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := roomLog.Clear(cmd.Context(), roomID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared room %d\n", roomID)
			return nil
		},
	}
	clearCmd.Flags().Int64Var(&roomID, "room", 0, "room id (required)")
	_ = clearCmd.MarkFlagRequired("room")

	hist.AddCommand(clearCmd)
	return hist
}

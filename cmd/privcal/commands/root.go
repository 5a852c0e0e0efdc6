package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"privcal/internal/app"
	"privcal/internal/domain"
)

var (
	home       string
	configPath string
	relayURLs  []string
	passphrase string
	logLevel   string

	appCtx *app.Session
	logger *slog.Logger
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "privcal",
		Short:         "Private calendar events over Nostr relays",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if logger, err = newLogger(logLevel); err != nil {
				return err
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".privcal")
			}
			cfg, err := app.LoadConfig(configPath, home)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("home") {
				cfg.Home = home
			}
			if len(relayURLs) > 0 {
				cfg.DefaultRelays = relayURLs
			}
			appCtx, err = app.NewSession(cmd.Context(), cfg, app.Options{Logger: logger})
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.privcal)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/config.yaml)")
	root.PersistentFlags().StringSliceVar(&relayURLs, "relay", nil, "default relay URL, repeatable (overrides default_relays)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")

	root.AddCommand(initCmd(), pubkeyCmd(), relaysCmd(), publishCmd(), rsvpCmd(), listenCmd())
	defer func() {
		if appCtx != nil {
			appCtx.Close()
		}
	}()
	return root.ExecuteContext(context.Background())
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// unlock activates the configured identity.
func unlock(cmd *cobra.Command) (domain.Signer, error) {
	return appCtx.Unlock(cmd.Context(), passphrase)
}

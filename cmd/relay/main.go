package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"privcal/internal/relay"
	"privcal/internal/relayd"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr      string
		publicURL string
		protect   bool
		auth      bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "In-memory development relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			if publicURL != "" {
				u, err := relay.NormalizeURL(publicURL)
				if err != nil {
					return err
				}
				publicURL = u
			}
			srv := &http.Server{
				Addr: addr,
				Handler: relayd.New(relayd.Options{
					URL:                 publicURL,
					ProtectGiftWraps:    protect,
					RequireAuthForWrite: auth,
					Logger:              log,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdown)
			}()

			log.Info("relay listening", "addr", addr, "protect_gift_wraps", protect, "require_auth", auth)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7447", "listen address")
	cmd.Flags().StringVar(&publicURL, "url", "", "public ws(s) URL checked in AUTH events")
	cmd.Flags().BoolVar(&protect, "protect-gift-wraps", false, "serve kind 1059 only to the authenticated recipient")
	cmd.Flags().BoolVar(&auth, "require-auth", false, "require NIP-42 auth before accepting events")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

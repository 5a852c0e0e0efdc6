package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"privcal/internal/crypto"
)

func listenCmd() *cobra.Command {
	var (
		since       time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream private calendar events addressed to you as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := unlock(cmd)
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = appCtx.Config.MetricsAddr
			}
			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr)
				defer func() {
					shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdown)
				}()
			}

			// Gift wraps are backdated, so widen the window by the maximum skew.
			var from *int64
			if since > 0 {
				v := time.Now().Add(-since - crypto.MaxTimestampSkew).Unix()
				from = &v
			}
			_, sessionCtx, err := appCtx.Current()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			context.AfterFunc(sessionCtx, cancel)

			events, err := appCtx.Messages.Listen(ctx, s, from)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "also fetch envelopes created within this window")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(appCtx.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

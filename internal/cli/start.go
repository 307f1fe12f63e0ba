package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-mq/internal/logging"
	"github.com/srediag/plugin-mq/pkg/codec"
	"github.com/srediag/plugin-mq/pkg/container"
	"github.com/srediag/plugin-mq/pkg/handler"
	"github.com/srediag/plugin-mq/pkg/health"
)

const previewLen = 256

func newStartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the container and log every received message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			c, err := codec.Lookup(cfg.Codec)
			if err != nil {
				return err
			}
			log := logging.Named("cli")

			ctr, err := container.New(cfg.ContainerConfig(),
				container.WithDialer(dialerFactory()),
				container.WithCodec(c),
				container.WithErrorHandler(func(err error) {
					log.Warn("dispatch failure", "err", err)
				}),
			)
			if err != nil {
				return err
			}

			var srv *http.Server
			if cfg.AdminAddress != "" {
				mux := health.NewMux(health.NewHandler(ctr, ctr.Registry()), ctr.Registry())
				srv = &http.Server{Addr: cfg.AdminAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("admin server", "addr", cfg.AdminAddress, "err", err)
					}
				}()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := handler.NewEngine(handler.WithCodec(c))
			_, err = engine.Bind(runCtx, ctr, handler.Methods{
				handler.OnDefault("log", func(_ context.Context, text string) error {
					if len(text) > previewLen {
						text = text[:previewLen] + "..."
					}
					log.Info("message", "text", text)
					return nil
				}),
			})
			if err != nil {
				shutdownAdmin(srv)
				return err
			}
			log.Info("container running",
				"outbound", cfg.OutboundAddress,
				"inbound", cfg.InboundAddress,
				"admin", cfg.AdminAddress)

			select {
			case <-runCtx.Done():
			case <-ctr.Done():
				log.Warn("receive worker exited", "err", ctr.Err())
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
			defer cancel()
			stopErr := ctr.Stop(shutdownCtx)
			shutdownAdmin(srv)
			if stopErr != nil {
				return stopErr
			}
			log.Info("container stopped")
			return ctr.Err()
		},
	}
}

func shutdownAdmin(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

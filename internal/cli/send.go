package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-mq/pkg/codec"
)

func newSendCmd(flags *rootFlags) *cobra.Command {
	var (
		asValue bool
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <payload>",
		Short: "Push one payload to the container's inbound address",
		Long: "Binds the inbound address with a PUSH socket, waits for the container to " +
			"connect and sends one message. With --json the argument is parsed as JSON " +
			"and re-encoded with the configured codec.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			payload := []byte(args[0])
			if asValue {
				c, err := codec.Lookup(cfg.Codec)
				if err != nil {
					return err
				}
				var v any
				if err := json.Unmarshal(payload, &v); err != nil {
					return fmt.Errorf("parse --json payload: %w", err)
				}
				if payload, err = c.Marshal(v); err != nil {
					return fmt.Errorf("encode payload: %w", err)
				}
			}

			sock, err := dialerFactory().NewPush(cmd.Context(), cfg.HighWaterMark)
			if err != nil {
				return err
			}
			defer sock.Close()
			if err := sock.Listen(cfg.InboundAddress); err != nil {
				return fmt.Errorf("bind %s: %w", cfg.InboundAddress, err)
			}
			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
			if err := sock.Send(payload); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", len(payload), cfg.InboundAddress)
			return err
		},
	}
	cmd.Flags().BoolVar(&asValue, "json", false, "Parse the payload as JSON and encode it with the configured codec")
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "Time to let the container connect before sending")
	return cmd
}

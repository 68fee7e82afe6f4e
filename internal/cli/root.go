package cli

import (
	"fmt"
	"time"

	"cart-sync/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server      string
	User        string
	Guest       string
	RedisAddr   string
	GuestTTL    time.Duration
	SyncTimeout time.Duration
	Verbose     bool
	Format      string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cart CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartcli",
		Short: "Drive a shopping cart session",
		Long: `Drive a shopping cart session against the cart API (--user) or a
guest cart kept in redis (--guest). Every command hydrates the session,
applies one change optimistically and waits for it to persist.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				util.SetLogger(logger)
			} else {
				util.SetLogger(zap.NewNop())
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "http://localhost:8080", "cart API base URL")
	cmd.PersistentFlags().StringVar(&opts.User, "user", "", "signed-in user id")
	cmd.PersistentFlags().StringVar(&opts.Guest, "guest", "", "guest session id")
	cmd.PersistentFlags().StringVar(&opts.RedisAddr, "redis", "localhost:6379", "redis address for guest carts")
	cmd.PersistentFlags().DurationVar(&opts.GuestTTL, "guest-ttl", 720*time.Hour, "guest cart lifetime")
	cmd.PersistentFlags().DurationVar(&opts.SyncTimeout, "sync-timeout", 10*time.Second, "give up on a save after this long")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewUnsaveCommand(opts))
	cmd.AddCommand(NewDropSavedCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

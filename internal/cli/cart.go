package cli

import (
	"fmt"
	"strconv"

	"cart-sync/internal/cart"
	"cart-sync/internal/cartsync"
	"cart-sync/internal/models"

	"github.com/spf13/cobra"
)

// lineFlags identify one product line on the command line
type lineFlags struct {
	Variant string
}

func (f *lineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Variant, "variant", "", "variant id")
}

// run hydrates a session, applies fn and reports the result
func run(cmd *cobra.Command, opts *RootOptions, fn func(*cartsync.Engine) *cart.Signal) error {
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return s.finish(cmd.OutOrStdout(), opts.Format, fn(s.engine))
}

func signalOf(sig cart.Signal) *cart.Signal { return &sig }

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "show",
		Short:        "Print the current cart and saved items",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(*cartsync.Engine) *cart.Signal { return nil })
		},
	}
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	lineFlags
	Name        string
	Price       float64
	Stock       int
	Image       string
	Slug        string
	VariantName string
	CreatorID   string
	CreatorName string
	Verified    bool
	Quantity    int
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	add := &AddOptions{}

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add units of a product to the cart",
		Long: `Add units of a product to the cart. Quantities beyond stock are
capped and reported as a warning.

Example:
  cartcli --user u1 add p1 --name Mug --price 12.5 --stock 4 --qty 2`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := models.CartLine{
				ID:          args[0],
				Name:        add.Name,
				Price:       add.Price,
				Image:       add.Image,
				Slug:        add.Slug,
				Stock:       add.Stock,
				VariantID:   add.Variant,
				VariantName: add.VariantName,
				Creator:     models.Creator{ID: add.CreatorID, Name: add.CreatorName, IsVerified: add.Verified},
			}
			if line.Name == "" {
				line.Name = line.ID
			}
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.AddToCart(line, add.Quantity))
			})
		},
	}

	add.register(cmd)
	cmd.Flags().StringVar(&add.Name, "name", "", "display name")
	cmd.Flags().Float64Var(&add.Price, "price", 0, "unit price")
	cmd.Flags().IntVar(&add.Stock, "stock", 0, "units available")
	cmd.Flags().StringVar(&add.Image, "image", "", "image URL")
	cmd.Flags().StringVar(&add.Slug, "slug", "", "product slug")
	cmd.Flags().StringVar(&add.VariantName, "variant-name", "", "variant display name")
	cmd.Flags().StringVar(&add.CreatorID, "creator", "", "creator id")
	cmd.Flags().StringVar(&add.CreatorName, "creator-name", "", "creator display name")
	cmd.Flags().BoolVar(&add.Verified, "verified", false, "creator is verified")
	cmd.Flags().IntVar(&add.Quantity, "qty", 1, "units to add")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &lineFlags{}

	cmd := &cobra.Command{
		Use:          "update <product-id> <quantity>",
		Short:        "Set the quantity of a cart line",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[1], err)
			}
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.UpdateQuantity(args[0], flags.Variant, qty))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	flags := &lineFlags{}

	cmd := &cobra.Command{
		Use:          "remove <product-id>",
		Short:        "Remove a line from the cart",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.RemoveFromCart(args[0], flags.Variant))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "clear",
		Short:        "Empty the cart; saved items are kept",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.ClearCart())
			})
		},
	}
}

// NewSaveCommand creates the save command.
func NewSaveCommand(opts *RootOptions) *cobra.Command {
	flags := &lineFlags{}

	cmd := &cobra.Command{
		Use:          "save <product-id>",
		Short:        "Move a cart line to saved for later",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.MoveToSaved(args[0], flags.Variant))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewUnsaveCommand creates the unsave command.
func NewUnsaveCommand(opts *RootOptions) *cobra.Command {
	flags := &lineFlags{}

	cmd := &cobra.Command{
		Use:          "unsave <product-id>",
		Short:        "Move a saved item back into the cart",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				id := models.Identity{ProductID: args[0], VariantID: flags.Variant}
				for _, l := range e.Snapshot().SavedLines {
					if l.Identity() == id {
						return signalOf(e.MoveToCart(l))
					}
				}
				// only saved lines carry the catalog data a cart line needs
				return &cart.Signal{Kind: cart.SignalNoop, Message: cart.ReasonNotSaved}
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewDropSavedCommand creates the drop-saved command.
func NewDropSavedCommand(opts *RootOptions) *cobra.Command {
	flags := &lineFlags{}

	cmd := &cobra.Command{
		Use:          "drop-saved <product-id>",
		Short:        "Delete an item from saved for later",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(e *cartsync.Engine) *cart.Signal {
				return signalOf(e.RemoveSaved(args[0], flags.Variant))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Merge a guest cart into a user's account cart",
		Long: `Merge the guest cart named by --guest into the account cart of --user.
The guest cart is cleared once the merged cart has been saved.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Guest == "" || opts.User == "" {
				return fmt.Errorf("login needs both --guest and --user")
			}

			guestOnly := *opts
			guestOnly.User = ""
			s, err := openSession(cmd.Context(), &guestOnly)
			if err != nil {
				return err
			}

			s.remote = newRemote(opts)
			if err := s.engine.Login(cmd.Context(), s.remote); err != nil {
				s.close()
				return err
			}
			return s.finish(cmd.OutOrStdout(), opts.Format, nil)
		},
	}
}

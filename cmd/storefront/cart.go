package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/credentials"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store a session token for later cart commands",
		Long:  "Stores --token and --user in the configured credential backend. Only the redis backend outlives this process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.token == "" {
				return fmt.Errorf("login requires --token")
			}
			creds, err := a.sessionStore()
			if err != nil {
				return err
			}
			if _, ok := creds.(*credentials.MemoryStore); ok {
				a.logger.Warn("credential backend is memory, the session ends with this process")
			}
			if err := creds.Set(cmd.Context(), domain.Credentials{Token: a.token, UserID: a.userID}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", a.userID)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session and its cached cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			creds, err := a.sessionStore()
			if err != nil {
				return err
			}
			svc, err := a.cartService()
			if err != nil {
				return err
			}
			s := a.cartStore(svc, creds)

			// load the cached cart first so Reset knows whose snapshot to drop
			if _, err := s.Hydrate(ctx); err != nil {
				return err
			}
			if err := creds.Clear(ctx); err != nil {
				return err
			}
			return s.Reset(ctx)
		},
	}
}

func (a *app) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the signed in customer's cart",
	}
	cmd.AddCommand(
		a.cartFetchCmd(),
		a.cartAddCmd(),
		a.cartRemoveCmd(),
		a.cartUpdateCmd(),
		a.cartSummaryCmd(),
	)
	return cmd
}

func (a *app) cartFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the cart and print it with its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadedStore(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
}

func (a *app) cartAddCmd() *cobra.Command {
	var (
		price      string
		checkStock bool
	)
	cmd := &cobra.Command{
		Use:   "add <product> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			quantity := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				quantity = n
			}

			creds, err := a.credentialStore(ctx)
			if err != nil {
				return err
			}
			svc, err := a.cartService()
			if err != nil {
				return err
			}
			s := a.cartStore(svc, creds)

			var unitPrice decimal.Decimal
			if price != "" {
				if unitPrice, err = decimal.NewFromString(price); err != nil {
					return fmt.Errorf("invalid price %q: %w", price, err)
				}
			}

			// without --price the line is recorded at the catalog price
			if checkStock || price == "" {
				product, err := lookupProduct(ctx, svc, creds, args[0])
				if err != nil {
					return err
				}
				if price != "" {
					product.UnitPrice = unitPrice
				}
				if checkStock {
					err = s.AddProduct(ctx, product, quantity)
				} else {
					err = s.AddItem(ctx, args[0], quantity, product.UnitPrice)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s.Snapshot())
			}

			if err := s.AddItem(ctx, args[0], quantity, unitPrice); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "unit price to record on the line (default: the catalog price)")
	cmd.Flags().BoolVar(&checkStock, "check-stock", false, "look the product up and refuse quantities above its stock")
	return cmd
}

func (a *app) cartRemoveCmd() *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "remove <product>",
		Short: "Remove a product, or some units of it, from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.loadedStore(ctx)
			if err != nil {
				return err
			}
			cart := s.Snapshot().Cart
			n := quantity
			if n == 0 {
				n = 1
				if item, ok := cart.Item(args[0]); ok {
					n = item.Quantity
				}
			}
			if err := s.RemoveItem(ctx, cart.ID, args[0], n); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
	cmd.Flags().IntVar(&quantity, "quantity", 0, "units to remove (default: the whole line)")
	return cmd
}

func (a *app) cartUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <product>=<quantity>...",
		Short: "Set line quantities; the batch is refused if any quantity is below 1",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseQuantities(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.loadedStore(ctx)
			if err != nil {
				return err
			}
			if err := s.UpdateItemQuantity(ctx, s.Snapshot().Cart.ID, items); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
}

func (a *app) cartSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the cart priced with GST",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadedStore(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pricing.Summarize(s.Snapshot().Cart.Items))
		},
	}
}

func lookupProduct(ctx context.Context, svc remote.ProductService, creds credentials.Store, productID string) (domain.Product, error) {
	c, err := creds.Get(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	res, err := svc.GetProduct(ctx, c.Token, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !res.OK {
		return domain.Product{}, fmt.Errorf("product %s: %s", productID, res.Message)
	}
	return res.Value, nil
}

// sessionStore is the configured credential backend, ignoring --token.
func (a *app) sessionStore() (credentials.Store, error) {
	token := a.token
	a.token = ""
	defer func() { a.token = token }()
	return a.credentialStore(context.Background())
}

// loadedStore returns a store holding a freshly fetched cart. Removes and
// updates need the current cart id.
func (a *app) loadedStore(ctx context.Context) (*store.CartStore, error) {
	creds, err := a.credentialStore(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := a.cartService()
	if err != nil {
		return nil, err
	}
	s := a.cartStore(svc, creds)
	if err := s.FetchCart(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func parseQuantities(args []string) ([]domain.ItemQuantity, error) {
	items := make([]domain.ItemQuantity, 0, len(args))
	for _, arg := range args {
		ref, qty, ok := strings.Cut(arg, "=")
		if !ok || ref == "" {
			return nil, fmt.Errorf("expected <product>=<quantity>, got %q", arg)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q", arg)
		}
		items = append(items, domain.ItemQuantity{ProductRef: ref, Quantity: n})
	}
	return items, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

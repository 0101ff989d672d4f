package main

import (
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Check out the cart and inspect past orders",
	}
	cmd.AddCommand(
		a.ordersListCmd(),
		a.ordersGetCmd(),
		a.ordersCheckoutCmd(),
	)
	return cmd
}

func (a *app) ordersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the signed in customer's orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			co, err := a.checkout(cmd, false)
			if err != nil {
				return err
			}
			orders, err := co.ListOrders(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), orders)
		},
	}
}

func (a *app) ordersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <order>",
		Short: "Print one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := a.checkout(cmd, false)
			if err != nil {
				return err
			}
			order, err := co.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), order)
		},
	}
}

func (a *app) ordersCheckoutCmd() *cobra.Command {
	var req domain.PlaceOrderRequest
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Turn the cart into an order and place it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			co, err := a.checkout(cmd, true)
			if err != nil {
				return err
			}
			placed, err := co.PlaceOrder(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), placed)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Shipping.Party.PartyName, "name", "", "recipient name (required)")
	f.StringVar(&req.Shipping.Party.Address, "address", "", "street address (required)")
	f.StringVar(&req.Shipping.Party.ContactNo, "contact", "", "contact phone number")
	f.StringVar(&req.Shipping.Party.Email, "email", "", "contact email")
	f.StringVar(&req.Shipping.Country, "country", "", "country")
	f.StringVar(&req.Shipping.State, "state", "", "state")
	f.StringVar(&req.Shipping.City, "city", "", "city")
	f.StringVar(&req.Shipping.ZipCode, "zip", "", "zip code")
	f.StringVar(&req.PaymentMethod, "payment", domain.PaymentCreditCard,
		"payment method: "+domain.PaymentCreditCard+" or "+domain.PaymentCashOnDelivery)
	return cmd
}

// checkout wires a Checkout over the configured services. Placing an order
// needs the current cart, so withCart fetches it first.
func (a *app) checkout(cmd *cobra.Command, withCart bool) (*store.Checkout, error) {
	ctx := cmd.Context()
	creds, err := a.credentialStore(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := a.cartService()
	if err != nil {
		return nil, err
	}
	s := a.cartStore(svc, creds)
	if withCart {
		if err := s.FetchCart(ctx); err != nil {
			return nil, err
		}
	}
	return store.NewCheckout(svc, s), nil
}

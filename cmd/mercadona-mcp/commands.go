package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aganoob/mercadona-mcp/internal/config"
)

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Show how to log in to Mercadona",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("To log in:")
		fmt.Println("  1. Open https://tienda.mercadona.es/?authenticate-user= in a browser and log in.")
		fmt.Println("  2. In the browser dev tools, copy the 'MO-user' LocalStorage entry (token + uuid)")
		fmt.Println("     and the URL-decoded '__mo_da' cookie (warehouse + postalCode).")
		fmt.Println("  3. Save them:")
		fmt.Println("       mercadona-mcp auth set-credentials <token> <uuid>")
		fmt.Println("       mercadona-mcp auth set-location <postal_code> <warehouse_id>")
		fmt.Println("  4. Verify with: mercadona-mcp status")
		return nil
	},
}

// --- auth ---

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Mercadona credentials and location",
}

var authSetCredentialsCmd = &cobra.Command{
	Use:   "set-credentials <token> <uuid>",
	Short: "Save the Mercadona session token and customer id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"token": args[0], "uuid": args[1]}
		resp, err := client.put(cmd.Context(), "/profile/credentials", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Credentials saved")
		return nil
	},
}

var authSetLocationCmd = &cobra.Command{
	Use:   "set-location <postal_code> <warehouse_id>",
	Short: "Save the delivery postal code and warehouse",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"postal_code": args[0], "warehouse_id": args[1]}
		resp, err := client.put(cmd.Context(), "/profile/location", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Location saved: %s (warehouse %s)", args[0], args[1])
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetCredentialsCmd)
	authCmd.AddCommand(authSetLocationCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the product catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/search?q="+url.QueryEscape(query))
		if err != nil {
			return err
		}

		var results []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Price     string `json:"price"`
			Packaging string `json:"packaging"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No products found.")
			return nil
		}

		for _, r := range results {
			line := fmt.Sprintf("%s  %s (%s€)", colorize(colorCyan, r.ID), r.Name, r.Price)
			if r.Packaging != "" {
				line += "  " + r.Packaging
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- product ---

var productCmd = &cobra.Command{
	Use:   "product <id>",
	Short: "Show full product details as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/products/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var product any
		if err := decodeJSON(resp, &product); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(product)
	},
}

// --- cart ---

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Manage the shopping cart",
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/cart")
		if err != nil {
			return err
		}

		var cart struct {
			CartID string `json:"cart_id"`
			Total  string `json:"total"`
			Items  []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				Quantity  int    `json:"quantity"`
				UnitPrice string `json:"unit_price"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &cart); err != nil {
			return err
		}

		if len(cart.Items) == 0 {
			fmt.Println("Cart is empty.")
			return nil
		}

		for _, item := range cart.Items {
			fmt.Printf("%s  %dx %s (%s€)\n", colorize(colorCyan, item.ID), item.Quantity, item.Name, item.UnitPrice)
		}
		fmt.Printf("\nTotal: %s€\n", colorize(colorBold, cart.Total))
		return nil
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add <product_id>",
	Short: "Add a product to the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, _ := cmd.Flags().GetInt("qty")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := []map[string]any{{"product_id": args[0], "quantity": qty}}
		resp, err := client.post(cmd.Context(), "/cart/items", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added %dx %s to cart", qty, args[0])
		return nil
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <product_id>",
	Short: "Remove a product from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/cart/items/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %s from cart", args[0])
		return nil
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all items from the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will empty the cart. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/cart")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cart cleared")
		return nil
	},
}

func init() {
	cartAddCmd.Flags().Int("qty", 1, "quantity to add")
	cartClearCmd.Flags().Bool("confirm", false, "confirm clearing the cart")
	cartCmd.AddCommand(cartShowCmd)
	cartCmd.AddCommand(cartAddCmd)
	cartCmd.AddCommand(cartRemoveCmd)
	cartCmd.AddCommand(cartClearCmd)
}

// --- orders ---

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List recent orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/orders?limit=%d", limit))
		if err != nil {
			return err
		}

		var orders []struct {
			ID        string  `json:"id"`
			StartDate string  `json:"start_date"`
			Status    string  `json:"status"`
			Total     float64 `json:"total"`
		}
		if err := decodeJSON(resp, &orders); err != nil {
			return err
		}

		if len(orders) == 0 {
			fmt.Println("No orders found.")
			return nil
		}

		for _, o := range orders {
			fmt.Printf("%s  %s  %s  %.2f€\n", colorize(colorCyan, o.ID), o.StartDate, o.Status, o.Total)
		}
		return nil
	},
}

func init() {
	ordersCmd.Flags().Int("limit", 20, "maximum number of orders to list")
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Compute replenishment recommendations from order history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/recommendations", nil)
		if err != nil {
			return err
		}

		var report struct {
			GeneratedAt string `json:"generated_at"`
			Items       []struct {
				ID           string `json:"id"`
				Name         string `json:"name"`
				Reason       string `json:"reason"`
				SuggestedQty int    `json:"suggested_qty"`
				Frequency    int    `json:"frequency"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if len(report.Items) == 0 {
			fmt.Println("No recommendations. Not enough order history yet.")
			return nil
		}

		for _, item := range report.Items {
			fmt.Printf("%s  %dx %s\n", colorize(colorCyan, item.ID), item.SuggestedQty, colorize(colorBold, item.Name))
			fmt.Printf("      %s (bought %d times)\n", item.Reason, item.Frequency)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

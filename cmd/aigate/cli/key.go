package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aigate/aigate/internal/model"
	"github.com/aigate/aigate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, revoke, and inspect the API keys used to authenticate against the AIGate REST API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyActivateCmd())
	cmd.AddCommand(newKeyStatsCmd())
	cmd.AddCommand(newKeyInitAdminCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		expiresDays int
		rateLimit   int
		endpoints   []string
		admin       bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  aigate key create --name "CI pipeline" --expires-days 30
  aigate key create --name ops --admin
  aigate key create --name transcriber --endpoints /transcribe --rate-limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, description, expiresDays, rateLimit, endpoints, admin)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	cmd.Flags().IntVar(&expiresDays, "expires-days", 0, "Days until expiry (0 = never expires)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute (0 = default 60)")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "Allowed endpoint paths (default: all)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin privileges")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name, description string, expiresDays, rateLimit int, endpoints []string, admin bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()

	keySvc := service.NewKeyService(st, cliLogger())

	plaintext, key, err := keySvc.CreateKey(context.Background(), service.CreateKeyParams{
		Name:             name,
		Description:      description,
		ExpiresInDays:    expiresDays,
		RateLimit:        rateLimit,
		AllowedEndpoints: endpoints,
		IsAdmin:          admin,
	})
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:       %s\n", plaintext)
	fmt.Printf("  Prefix:    %s\n", key.KeyPrefix)
	fmt.Printf("  Name:      %s\n", key.Name)
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires:   %s\n", key.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Expires:   never\n")
	}
	fmt.Printf("  Endpoints: %s\n", key.AllowedEndpoints)
	if key.IsAdmin {
		fmt.Printf("  Admin:     yes\n")
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput, activeOnly)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show active keys only")

	return cmd
}

func runKeyList(jsonOutput, activeOnly bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()

	keySvc := service.NewKeyService(st, cliLogger())

	keys, err := keySvc.ListKeys(context.Background(), activeOnly)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		Prefix    string `json:"prefix"`
		Name      string `json:"name"`
		Active    bool   `json:"active"`
		Admin     bool   `json:"admin"`
		Endpoints string `json:"endpoints"`
		Usage     int64  `json:"usage_count"`
		Expires   string `json:"expires,omitempty"`
	}

	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			Prefix:    k.KeyPrefix,
			Name:      k.Name,
			Active:    k.IsActive,
			Admin:     k.IsAdmin,
			Endpoints: k.AllowedEndpoints,
			Usage:     k.UsageCount,
		}
		if k.ExpiresAt != nil {
			rows[i].Expires = k.ExpiresAt.Format("2006-01-02")
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys configured. Use 'aigate key create' to create one.")
		return nil
	}

	fmt.Printf("%-14s %-20s %-7s %-6s %-24s %-8s %-10s\n", "PREFIX", "NAME", "ACTIVE", "ADMIN", "ENDPOINTS", "USAGE", "EXPIRES")
	fmt.Printf("%-14s %-20s %-7s %-6s %-24s %-8s %-10s\n", "------", "----", "------", "-----", "---------", "-----", "-------")
	for _, k := range rows {
		expires := k.Expires
		if expires == "" {
			expires = "never"
		}
		fmt.Printf("%-14s %-20s %-7s %-6s %-24s %-8d %-10s\n",
			k.Prefix, k.Name, yesNo(k.Active), yesNo(k.Admin), k.Endpoints, k.Usage, expires)
	}

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---------- key revoke / activate ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key. The row and its audit history are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyToggle(args[0], false)
		},
	}

	return cmd
}

func newKeyActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <prefix>",
		Short: "Re-activate a revoked API key by its prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyToggle(args[0], true)
		},
	}

	return cmd
}

func runKeyToggle(prefix string, active bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()

	keySvc := service.NewKeyService(st, cliLogger())
	ctx := context.Background()

	var ok bool
	if active {
		ok, err = keySvc.ActivateKey(ctx, prefix)
	} else {
		ok, err = keySvc.RevokeKey(ctx, prefix)
	}
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if !ok {
		return fmt.Errorf("no API key found with prefix %q", prefix)
	}

	if active {
		fmt.Printf("Activated API key %q\n", prefix)
	} else {
		fmt.Printf("Revoked API key %q\n", prefix)
	}
	return nil
}

// ---------- key stats ----------

func newKeyStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [prefix]",
		Short: "Show usage statistics",
		Long:  "Show per-key usage statistics for a prefix, or global key and request counts when no prefix is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return runKeyStats(prefix)
		},
	}

	return cmd
}

func runKeyStats(prefix string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()

	keySvc := service.NewKeyService(st, cliLogger())
	ctx := context.Background()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if prefix != "" {
		stats, err := keySvc.KeyStats(ctx, prefix)
		if err != nil {
			return fmt.Errorf("key stats: %w", err)
		}
		return enc.Encode(stats)
	}

	stats, err := keySvc.GlobalStats(ctx)
	if err != nil {
		return fmt.Errorf("global stats: %w", err)
	}
	return enc.Encode(stats)
}

// ---------- key init-admin ----------

func newKeyInitAdminCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init-admin",
		Short: "Bootstrap the first admin API key",
		Long: `Create the initial admin API key for a fresh installation.

Refuses to run when an active admin key already exists; use the admin HTTP
API or 'aigate key create --admin' from then on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyInitAdmin(name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "Initial Admin Key", "Name for the bootstrap key")

	return cmd
}

func runKeyInitAdmin(name string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer st.Close()

	keySvc := service.NewKeyService(st, cliLogger())
	ctx := context.Background()

	keys, err := keySvc.ListKeys(ctx, true)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}
	for _, k := range keys {
		if k.IsAdmin {
			return fmt.Errorf("an active admin key already exists (prefix %s)", k.KeyPrefix)
		}
	}

	plaintext, key, err := keySvc.CreateKey(ctx, service.CreateKeyParams{
		Name:             name,
		Description:      "Bootstrap admin key created by 'aigate key init-admin'",
		RateLimit:        1000,
		AllowedEndpoints: []string{model.EndpointsAll},
		IsAdmin:          true,
	})
	if err != nil {
		return fmt.Errorf("create admin key: %w", err)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Admin API key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", plaintext)
	fmt.Printf("  Prefix: %s\n", key.KeyPrefix)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	fmt.Println(strings.Repeat("=", 60))
	return nil
}

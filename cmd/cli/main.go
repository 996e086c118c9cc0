package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/infrastructure/logger"
	"github.com/iho/walletledger/internal/infrastructure/postgres"
)

// options are the persistent flags shared by every API command.
type options struct {
	baseURL string
	owner   string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "walletledger-cli",
		Short:         "Wallet ledger CLI tool",
		Long:          `A command line interface for the wallet ledger API and its database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("WALLETLEDGER_URL", "http://localhost:8080"), "Base URL of the wallet ledger API")
	rootCmd.PersistentFlags().StringVar(&opts.owner, "owner", os.Getenv("WALLETLEDGER_OWNER"), "Owner id sent as X-Owner-ID")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("WALLETLEDGER_TOKEN"), "Bearer token; takes precedence over --owner")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		newAccountCmd(opts),
		newBalanceCmd(opts),
		newTransferCmd(opts),
		newEntriesCmd(opts),
		newLedgerCmd(opts),
		newTokenCmd(),
		newMigrateCmd(),
	)

	return rootCmd
}

func newAccountCmd(opts *options) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	var currency string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open an account in a currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd, http.MethodPost, "/api/v1/accounts", map[string]any{"currency": currency}, "")
		},
	}
	createCmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code")
	_ = createCmd.MarkFlagRequired("currency")

	getCmd := &cobra.Command{
		Use:   "get <account-id>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0]), nil, "")
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the owner's accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd, http.MethodGet, "/api/v1/accounts"+pageQuery(limit, offset), nil, "")
		},
	}
	addPageFlags(listCmd, &limit, &offset)

	var status string
	statusCmd := &cobra.Command{
		Use:   "status <account-id>",
		Short: "Change an account's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/status"
			return newClient(opts).call(cmd, http.MethodPatch, path, map[string]any{"status": strings.ToUpper(status)}, "")
		},
	}
	statusCmd.Flags().StringVar(&status, "status", "", "ACTIVE, DISABLED or CLOSED")
	_ = statusCmd.MarkFlagRequired("status")

	accountCmd.AddCommand(createCmd, getCmd, listCmd, statusCmd)
	return accountCmd
}

// balanceOperations maps subcommands to their account endpoint.
var balanceOperations = []struct {
	use   string
	short string
	path  string
}{
	{"credit", "Add funds to an account", "credit"},
	{"debit", "Remove funds from an account", "debit"},
	{"pending-debit", "Hold funds for a later capture or release", "pending-debit"},
	{"capture", "Settle held funds", "capture"},
	{"release", "Return held funds to the available balance", "release"},
}

func newBalanceCmd(opts *options) *cobra.Command {
	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Balance operations on a single account",
	}

	for _, op := range balanceOperations {
		var amount, currency, reference, key string

		cmd := &cobra.Command{
			Use:   op.use + " <account-id>",
			Short: op.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				minor, err := parseAmount(amount, currency)
				if err != nil {
					return err
				}

				body := map[string]any{"amount": minor, "currency": strings.ToUpper(currency)}
				if reference != "" {
					body["reference_id"] = reference
				}

				path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/" + op.path
				return newClient(opts).call(cmd, http.MethodPost, path, body, key)
			},
		}
		addMoneyFlags(cmd, &amount, &currency, &reference, &key)
		balanceCmd.AddCommand(cmd)
	}

	return balanceCmd
}

func newTransferCmd(opts *options) *cobra.Command {
	transferCmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer operations",
	}

	var from, to, amount, currency, reference, key string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Move funds between two accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			minor, err := parseAmount(amount, currency)
			if err != nil {
				return err
			}

			body := map[string]any{
				"from_account_id": from,
				"to_account_id":   to,
				"amount":          minor,
				"currency":        strings.ToUpper(currency),
			}
			if reference != "" {
				body["reference_id"] = reference
			}

			return newClient(opts).call(cmd, http.MethodPost, "/api/v1/transfers", body, key)
		},
	}
	createCmd.Flags().StringVar(&from, "from", "", "Source account id")
	createCmd.Flags().StringVar(&to, "to", "", "Destination account id")
	_ = createCmd.MarkFlagRequired("from")
	_ = createCmd.MarkFlagRequired("to")
	addMoneyFlags(createCmd, &amount, &currency, &reference, &key)

	getCmd := &cobra.Command{
		Use:   "get <transfer-id>",
		Short: "Show a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd, http.MethodGet, "/api/v1/transfers/"+url.PathEscape(args[0]), nil, "")
		},
	}

	reverseCmd := &cobra.Command{
		Use:   "reverse <transfer-id>",
		Short: "Reverse a completed transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd, http.MethodPost, "/api/v1/transfers/"+url.PathEscape(args[0])+"/reversal", nil, "")
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list <account-id>",
		Short: "List transfers touching an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/transfers" + pageQuery(limit, offset)
			return newClient(opts).call(cmd, http.MethodGet, path, nil, "")
		},
	}
	addPageFlags(listCmd, &limit, &offset)

	transferCmd.AddCommand(createCmd, getCmd, reverseCmd, listCmd)
	return transferCmd
}

func newEntriesCmd(opts *options) *cobra.Command {
	var limit, offset int
	var reference, transfer string

	cmd := &cobra.Command{
		Use:   "entries [account-id]",
		Short: "List ledger entries by account, reference or transfer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case reference != "":
				path = "/api/v1/entries/" + url.PathEscape(reference)
			case transfer != "":
				path = "/api/v1/transfers/" + url.PathEscape(transfer) + "/entries"
			case len(args) == 1:
				path = "/api/v1/accounts/" + url.PathEscape(args[0]) + "/entries" + pageQuery(limit, offset)
			default:
				return fmt.Errorf("an account id, --reference or --transfer is required")
			}

			return newClient(opts).call(cmd, http.MethodGet, path, nil, "")
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "List entries sharing a reference id")
	cmd.Flags().StringVar(&transfer, "transfer", "", "List both legs of a transfer")
	addPageFlags(cmd, &limit, &offset)

	return cmd
}

func newLedgerCmd(opts *options) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).check(cmd, "/api/v1/ledger/consistency", "Consistency check")
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile every account against its entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).check(cmd, "/api/v1/ledger/reconciliation", "Reconciliation")
		},
	}

	ledgerCmd.AddCommand(consistencyCmd, reconcileCmd)
	return ledgerCmd
}

func newTokenCmd() *cobra.Command {
	var secret, owner string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(owner)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the server")
	cmd.Flags().StringVar(&owner, "subject", "", "Owner id the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// migrations run the embedded schema; they are swappable in tests.
var (
	migrateUp   = postgres.RunMigrations
	migrateDown = postgres.RunMigrationsDown
)

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")

	run := func(fn func(string, zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			log := logger.New(logger.Config{Level: "info", Format: "console"})
			return fn(databaseURL, log)
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(migrateUp)},
		&cobra.Command{Use: "down", Short: "Roll back every migration", RunE: run(migrateDown)},
	)

	return migrateCmd
}

// client is a thin JSON client for the wallet ledger API.
type client struct {
	http *http.Client
	opts *options
}

func newClient(opts *options) *client {
	return &client{http: &http.Client{Timeout: opts.timeout}, opts: opts}
}

// call sends one request and pretty-prints the JSON response. Non-2xx
// responses are printed and returned as an error.
func (c *client) call(cmd *cobra.Command, method, path string, body any, idempotencyKey string) error {
	status, payload, err := c.do(cmd.Context(), method, path, body, idempotencyKey)
	if err != nil {
		return err
	}

	if len(payload) > 0 {
		printJSON(cmd.OutOrStdout(), payload)
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("request failed with status %d", status)
	}
	return nil
}

// check runs a ledger check, which answers 409 when the ledger disagrees with itself.
func (c *client) check(cmd *cobra.Command, path, name string) error {
	status, payload, err := c.do(cmd.Context(), http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch status {
	case http.StatusOK:
		fmt.Fprintf(out, "%s PASSED\n", name)
	case http.StatusConflict:
		fmt.Fprintf(out, "%s FAILED\n", name)
	default:
		fmt.Fprintf(out, "%s ERROR (status %d)\n", name, status)
	}
	printJSON(out, payload)

	if status != http.StatusOK {
		return fmt.Errorf("%s did not pass", strings.ToLower(name))
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body any, idempotencyKey string) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.opts.baseURL, "/")+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.token)
	} else if c.opts.owner != "" {
		req.Header.Set("X-Owner-ID", c.opts.owner)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, payload, nil
}

// parseAmount converts a major-unit amount such as "12.34" to minor units.
func parseAmount(amount, currency string) (int64, error) {
	if amount == "" {
		return 0, fmt.Errorf("--amount is required")
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	code, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}

	return domain.ToMinorUnits(value, code)
}

func addMoneyFlags(cmd *cobra.Command, amount, currency, reference, key *string) {
	cmd.Flags().StringVar(amount, "amount", "", "Amount in major units, e.g. 12.34")
	cmd.Flags().StringVar(currency, "currency", "", "ISO 4217 currency code")
	cmd.Flags().StringVar(reference, "reference", "", "Reference id; generated by the server when empty")
	cmd.Flags().StringVar(key, "idempotency-key", "", "Idempotency-Key header value")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("currency")
}

func addPageFlags(cmd *cobra.Command, limit, offset *int) {
	cmd.Flags().IntVar(limit, "limit", 0, "Page size (server default when 0)")
	cmd.Flags().IntVar(offset, "offset", 0, "Page offset")
}

func pageQuery(limit, offset int) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func printJSON(w io.Writer, payload []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		fmt.Fprintln(w, string(payload))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

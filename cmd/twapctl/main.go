// Command twapctl is the operator CLI for a running twapbot. It creates,
// inspects and cancels orders, manages positions through the HTTP API, and
// encrypts wallet keys for the keyring.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/alanyoungcy/twapbot/internal/crypto"
)

func main() {
	cmd := &cli.Command{
		Name:  "twapctl",
		Usage: "Operate a twapbot scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "base URL of the twapbot API",
				Value:   "http://localhost:8000",
				Sources: cli.EnvVars("TWAPBOT_API_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent as a Bearer token",
				Sources: cli.EnvVars("TWAPBOT_SERVER_API_KEY"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP request timeout",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			createCommand(),
			getCommand(),
			listCommand(),
			cancelCommand(),
			registerAccountCommand(),
			positionsCommand(),
			closePositionCommand(),
			executionsCommand(),
			encryptKeyCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func clientFrom(cmd *cli.Command) *apiClient {
	root := cmd.Root()
	return newAPIClient(root.String("server"), root.String("api-key"), root.Duration("timeout"))
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Schedule a new TWAP order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account id", Required: true},
			&cli.StringFlag{Name: "wallet", Usage: "source wallet public key", Required: true},
			&cli.StringFlag{Name: "chain", Usage: "chain name", Required: true},
			&cli.StringFlag{Name: "token", Usage: "target token", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "total amount of the chain's native asset to spend", Required: true},
			&cli.TimestampFlag{
				Name:  "end",
				Usage: "end time in RFC3339",
				Config: cli.TimestampConfig{
					Layouts: []string{time.RFC3339},
				},
			},
			&cli.DurationFlag{Name: "for", Usage: "run for this long instead of --end"},
			&cli.StringFlag{Name: "interval", Usage: "time between slices (Go duration or minutes)"},
			&cli.BoolFlag{Name: "track", Usage: "create a linked position"},
			&cli.StringFlag{Name: "stop-loss", Usage: "stop loss price (recorded only)"},
			&cli.StringFlag{Name: "take-profit", Usage: "take profit price (recorded only)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			amount, err := decimal.NewFromString(cmd.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			end := cmd.Timestamp("end")
			if d := cmd.Duration("for"); d > 0 {
				end = time.Now().UTC().Add(d)
			}
			if end.IsZero() {
				return errors.New("one of --end or --for is required")
			}

			req := map[string]any{
				"account_id":     cmd.String("account"),
				"source_wallet":  cmd.String("wallet"),
				"chain":          cmd.String("chain"),
				"target_token":   cmd.String("token"),
				"total_amount":   amount.String(),
				"end_time":       end.UTC().Format(time.RFC3339),
				"interval":       cmd.String("interval"),
				"track_position": cmd.Bool("track"),
			}
			thresholds := map[string]any{}
			for flag, field := range map[string]string{"stop-loss": "stop_loss_price", "take-profit": "take_profit_price"} {
				if v := cmd.String(flag); v != "" {
					if _, err := decimal.NewFromString(v); err != nil {
						return fmt.Errorf("invalid --%s: %w", flag, err)
					}
					thresholds[field] = v
				}
			}
			if len(thresholds) > 0 {
				req["exit_thresholds"] = thresholds
			}

			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "POST", "/api/orders", req, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show an order and its executions",
		ArgsUsage: "<order-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "order id")
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "GET", "/api/orders/"+url.PathEscape(id), nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List orders",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "only this account"},
			&cli.StringFlag{Name: "status", Usage: "pending, active, completed or cancelled"},
			&cli.IntFlag{Name: "limit", Value: 50},
			&cli.IntFlag{Name: "offset"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			q := url.Values{}
			if v := cmd.String("account"); v != "" {
				q.Set("account_id", v)
			}
			if v := cmd.String("status"); v != "" {
				q.Set("status", v)
			}
			q.Set("limit", strconv.Itoa(int(cmd.Int("limit"))))
			q.Set("offset", strconv.Itoa(int(cmd.Int("offset"))))

			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "GET", "/api/orders?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func executionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "executions",
		Usage: "Replay the execution journal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "after", Usage: "journal id to resume after", Value: "0"},
			&cli.IntFlag{Name: "limit", Value: 100},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			q := url.Values{}
			q.Set("after", cmd.String("after"))
			q.Set("limit", strconv.Itoa(int(cmd.Int("limit"))))

			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "GET", "/api/executions?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func cancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel an order",
		ArgsUsage: "<order-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "order id")
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "DELETE", "/api/orders/"+url.PathEscape(id), nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func registerAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "register-account",
		Usage: "Register an account and its wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "account id", Required: true},
			&cli.StringSliceFlag{Name: "wallet", Usage: "chain:public_key, repeatable", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var wallets []map[string]string
			for _, w := range cmd.StringSlice("wallet") {
				chain, pub, ok := strings.Cut(w, ":")
				if !ok || chain == "" || pub == "" {
					return fmt.Errorf("invalid --wallet %q, want chain:public_key", w)
				}
				wallets = append(wallets, map[string]string{"chain": chain, "public_key": pub})
			}
			var out json.RawMessage
			req := map[string]any{"id": cmd.String("id"), "wallets": wallets}
			if err := clientFrom(cmd).do(ctx, "POST", "/api/accounts", req, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func positionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "positions",
		Usage: "List an account's positions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var out json.RawMessage
			path := "/api/accounts/" + url.PathEscape(cmd.String("account")) + "/positions"
			if err := clientFrom(cmd).do(ctx, "GET", path, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func closePositionCommand() *cli.Command {
	return &cli.Command{
		Name:  "close-position",
		Usage: "Record that a position was closed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account id", Required: true},
			&cli.StringFlag{Name: "position", Usage: "position id", Required: true},
			&cli.StringFlag{Name: "reason", Usage: "free-form close reason"},
			&cli.StringFlag{Name: "exit-price", Usage: "exit price"},
			&cli.StringFlag{Name: "tx", Usage: "closing transaction id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req := map[string]any{
				"reason":         cmd.String("reason"),
				"transaction_id": cmd.String("tx"),
			}
			if v := cmd.String("exit-price"); v != "" {
				if _, err := decimal.NewFromString(v); err != nil {
					return fmt.Errorf("invalid --exit-price: %w", err)
				}
				req["exit_price"] = v
			}
			path := fmt.Sprintf("/api/accounts/%s/positions/%s/close",
				url.PathEscape(cmd.String("account")), url.PathEscape(cmd.String("position")))

			var out json.RawMessage
			if err := clientFrom(cmd).do(ctx, "POST", path, req, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func encryptKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt-key",
		Usage: "Encrypt a wallet private key into the keyring directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Usage:   "hex private key",
				Sources: cli.EnvVars("TWAPBOT_WALLET_PRIVATE_KEY"),
			},
			&cli.StringFlag{Name: "from-file", Usage: "re-encrypt an existing key file instead of --key"},
			&cli.StringFlag{Name: "old-password", Usage: "password of --from-file"},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "keyring password",
				Required: true,
				Sources:  cli.EnvVars("TWAPBOT_KEYRING_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "keys-dir",
				Usage:   "keyring directory",
				Value:   "keys",
				Sources: cli.EnvVars("TWAPBOT_KEYRING_KEYS_DIR"),
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			key, err := crypto.LoadKey(crypto.KeyConfig{
				RawPrivateKey:    cmd.String("key"),
				EncryptedKeyPath: cmd.String("from-file"),
				KeyPassword:      cmd.String("old-password"),
			})
			if err != nil {
				return err
			}
			addr, err := crypto.AddressFromKey(key)
			if err != nil {
				return err
			}
			data, err := crypto.EncryptKey(key, cmd.String("password"))
			if err != nil {
				return err
			}

			dir := cmd.String("keys-dir")
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			path := filepath.Join(dir, strings.ToLower(addr)+".json")
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Printf("wallet %s written to %s\n", addr, path)
			return nil
		},
	}
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", what)
	}
	return cmd.Args().First(), nil
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

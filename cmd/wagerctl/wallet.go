package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wager-bot/internal/asset"
	"wager-bot/internal/config"
	"wager-bot/internal/pkg/db"
	"wager-bot/internal/repository"
	"wager-bot/internal/service"
)

// WalletCmd inspects and funds house wallets.
func WalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect and fund house wallets",
	}
	cmd.AddCommand(
		walletMintCmd(),
		walletShowCmd(),
	)
	return cmd
}

// parseOwner accepts a hex address or a Telegram user ID.
func parseOwner(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%q is neither an address nor a Telegram user ID", s)
	}
	return service.IdentityFor(id), nil
}

// lookupEntry resolves a symbol against config and stored tokens.
func lookupEntry(ctx context.Context, cfg *config.Config, pool *db.Pool, symbol string) (asset.Entry, error) {
	allowList := asset.NewAllowList(cfg.Escrow.NativeSymbol, cfg.Escrow.NativeDecimals)
	for _, t := range cfg.Escrow.AllowedTokens {
		allowList.Allow(asset.Entry{Ref: asset.Token(common.HexToAddress(t.Address)), Symbol: t.Symbol, Decimals: t.Decimals})
	}
	stored, err := repository.NewAssetRepository(pool.Pool).List(ctx)
	if err != nil {
		return asset.Entry{}, err
	}
	for _, e := range stored {
		allowList.Allow(e)
	}

	if e, ok := allowList.BySymbol(symbol); ok {
		return e, nil
	}
	ref, err := asset.ParseRef(symbol)
	if err != nil {
		return asset.Entry{}, err
	}
	if e, ok := allowList.Lookup(ref); ok {
		return e, nil
	}
	return asset.Entry{}, fmt.Errorf("asset %s is not allowed", symbol)
}

func walletMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint <address|telegram_id> <amount> [asset]",
		Short: "Credit a house wallet",
		Args:  cobra.RangeArgs(2, 3),
	}
	cmd.Flags().StringP("asset", "a", "", "asset symbol or token address (default native)")
	cmd.RunE = withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool, args []string) error {
		owner, err := parseOwner(args[0])
		if err != nil {
			return err
		}
		symbol, _ := cmd.Flags().GetString("asset")
		if len(args) > 2 {
			symbol = args[2]
		}
		if symbol == "" {
			symbol = cfg.Escrow.NativeSymbol
		}
		e, err := lookupEntry(ctx, cfg, pool, symbol)
		if err != nil {
			return err
		}
		amount, err := service.ParseUnits(args[1], e.Decimals)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return fmt.Errorf("amount must be positive")
		}

		balance, err := repository.NewWalletRepository(pool.Pool, cfg.Escrow.EscrowAddress()).Credit(ctx, e.Ref, owner, amount)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("%s now holds %s %s", owner.Hex(), service.FormatUnits(balance, e.Decimals), e.Symbol)
		return nil
	})
	return cmd
}

func walletShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <address|telegram_id|escrow>",
		Short: "Show house wallet balances",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool, args []string) error {
			var owner common.Address
			if args[0] == "escrow" {
				owner = cfg.Escrow.EscrowAddress()
			} else {
				var err error
				if owner, err = parseOwner(args[0]); err != nil {
					return err
				}
			}

			wallets, err := repository.NewWalletRepository(pool.Pool, cfg.Escrow.EscrowAddress()).List(ctx, owner)
			if err != nil {
				return err
			}
			if len(wallets) == 0 {
				pterm.Info.Printfln("%s holds nothing", owner.Hex())
				return nil
			}

			data := pterm.TableData{{"Asset", "Balance", "Updated"}}
			for _, w := range wallets {
				balance := w.Balance.String()
				if e, err := lookupEntry(ctx, cfg, pool, w.Asset.String()); err == nil {
					balance = service.FormatUnits(w.Balance, e.Decimals) + " " + e.Symbol
				}
				data = append(data, []string{w.Asset.String(), balance, w.UpdatedAt.Format("2006-01-02 15:04:05")})
			}
			pterm.DefaultSection.Println(owner.Hex())
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}),
	}
}

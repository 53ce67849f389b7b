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
)

// AssetCmd manages the token allow-list.
func AssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage the token allow-list",
	}
	cmd.AddCommand(
		assetAllowCmd(),
		assetRevokeCmd(),
		assetListCmd(),
	)
	return cmd
}

func parseToken(s string) (asset.Ref, error) {
	if !common.IsHexAddress(s) {
		return asset.Ref{}, fmt.Errorf("%q is not a token address", s)
	}
	ref := asset.Token(common.HexToAddress(s))
	if ref.IsNative() {
		return asset.Ref{}, fmt.Errorf("the native asset is always allowed")
	}
	return ref, nil
}

func assetAllowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allow <address> <symbol> <decimals>",
		Short: "Allow games in a token",
		Args:  cobra.ExactArgs(3),
		RunE: withDB(func(ctx context.Context, _ *config.Config, pool *db.Pool, args []string) error {
			ref, err := parseToken(args[0])
			if err != nil {
				return err
			}
			decimals, err := strconv.ParseInt(args[2], 10, 32)
			if err != nil || decimals < 0 {
				return fmt.Errorf("decimals must be a non-negative integer")
			}
			e := asset.Entry{Ref: ref, Symbol: args[1], Decimals: int32(decimals)}
			if err := repository.NewAssetRepository(pool.Pool).Allow(ctx, e); err != nil {
				return err
			}
			pterm.Success.Printfln("%s (%s) allowed; restart the bot to pick it up", e.Symbol, ref)
			return nil
		}),
	}
}

func assetRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <address>",
		Short: "Stop new games in a token",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(func(ctx context.Context, _ *config.Config, pool *db.Pool, args []string) error {
			ref, err := parseToken(args[0])
			if err != nil {
				return err
			}
			removed, err := repository.NewAssetRepository(pool.Pool).Revoke(ctx, ref)
			if err != nil {
				return err
			}
			if !removed {
				pterm.Warning.Printfln("%s was not allowed", ref)
				return nil
			}
			pterm.Success.Printfln("%s revoked; running games keep escrowing it", ref)
			return nil
		}),
	}
}

func assetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List allowed assets",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool, _ []string) error {
			stored, err := repository.NewAssetRepository(pool.Pool).List(ctx)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"Symbol", "Address", "Decimals", "Source"}}
			data = append(data, []string{cfg.Escrow.NativeSymbol, asset.NativeName, strconv.Itoa(int(cfg.Escrow.NativeDecimals)), "native"})
			for _, t := range cfg.Escrow.AllowedTokens {
				data = append(data, []string{t.Symbol, common.HexToAddress(t.Address).Hex(), strconv.Itoa(int(t.Decimals)), "config"})
			}
			for _, e := range stored {
				data = append(data, []string{e.Symbol, e.Ref.String(), strconv.Itoa(int(e.Decimals)), "database"})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}),
	}
}

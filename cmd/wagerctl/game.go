package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wager-bot/internal/codegen"
	"wager-bot/internal/config"
	"wager-bot/internal/pkg/db"
	"wager-bot/internal/repository"
)

// GameCmd inspects stored games.
func GameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Inspect stored games",
	}
	cmd.AddCommand(
		gameListCmd(),
		gameShowCmd(),
	)
	return cmd
}

func gameListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List games, most recently active first",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("status", "s", "", "filter by status: open, locked or confirmed")
	cmd.Flags().IntP("limit", "n", 20, "maximum number of games")
	cmd.RunE = withDB(func(ctx context.Context, _ *config.Config, pool *db.Pool, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		games, err := repository.NewGameRepository(pool.Pool).List(ctx, status, limit)
		if err != nil {
			return err
		}

		data := pterm.TableData{{"Code", "Status", "Asset", "Buy-in", "Pot", "Players", "Updated"}}
		for _, g := range games {
			data = append(data, []string{
				g.Code,
				g.Status(),
				g.Asset.String(),
				g.BuyIn.String(),
				g.Pot.String(),
				fmt.Sprintf("%d/%d", len(g.Roster.Players), g.Roster.MaxPlayers),
				g.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
	return cmd
}

func gameShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <code>",
		Short: "Show a game and its journal",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntP("limit", "n", 100, "maximum journal lines")
	cmd.RunE = withDB(func(ctx context.Context, _ *config.Config, pool *db.Pool, args []string) error {
		code := codegen.Normalize(args[0])
		if err := codegen.Validate(code); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		rec, err := repository.NewGameRepository(pool.Pool).Get(ctx, code)
		if err != nil {
			return err
		}
		events, err := repository.NewJournalRepository(pool.Pool).ListByGame(ctx, code, limit)
		if err != nil {
			return err
		}

		splits := make([]string, len(rec.Splits))
		for i, s := range rec.Splits {
			splits[i] = strconv.Itoa(int(s))
		}
		summary := strings.Join([]string{
			"Host:     " + rec.Host.Hex(),
			"Status:   " + rec.Status(),
			"Asset:    " + rec.Asset.String(),
			"Buy-in:   " + rec.BuyIn.String(),
			"Pot:      " + rec.Pot.String(),
			"Splits:   " + strings.Join(splits, " "),
			"Players:  " + joinAddresses(rec.Roster.Players),
			"Judges:   " + joinAddresses(rec.Roster.Judges),
			"Winners:  " + joinAddresses(rec.Consensus.Winners),
			"Claimed:  " + joinAddresses(rec.Claimed),
		}, "\n")
		pterm.DefaultBox.WithTitle(pterm.LightYellow(code)).WithTitleTopCenter().Println(summary)

		data := pterm.TableData{{"Time", "Event", "Actor", "Subject", "Amount"}}
		for _, ev := range events {
			amount := ""
			if ev.Amount != nil {
				amount = ev.Amount.String()
			}
			subject := ""
			if ev.Subject != (common.Address{}) {
				subject = ev.Subject.Hex()
			}
			data = append(data, []string{ev.At.Format("2006-01-02 15:04:05"), ev.Kind, ev.Actor.Hex(), subject, amount})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
	return cmd
}

func joinAddresses(ids []common.Address) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Hex()
	}
	return strings.Join(parts, ", ")
}

package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/service"
)

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	accountService *service.AccountService
	wagerService   *service.WagerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, wagerService *service.WagerService) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		wagerService:   wagerService,
	}
}

// HandleMint handles the /mint command.
// Format: /mint <@user|user_id|0x地址> <amount> [asset]
func (h *AdminHandler) HandleMint(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /mint <@用户|用户ID|地址> <金额> [资产]\n例如: /mint @alice 1.5 ETH")
	}

	target, err := h.parseTarget(ctx, args[0])
	if err != nil {
		return replyError(c, "mint", err)
	}

	symbol := ""
	if len(args) > 2 {
		symbol = args[2]
	}
	entry, err := h.wagerService.Entry(symbol)
	if err != nil {
		return replyError(c, "mint", err)
	}
	amount, err := service.ParseUnits(args[1], entry.Decimals)
	if err != nil {
		return replyError(c, "mint", err)
	}

	balance, err := h.accountService.Mint(ctx, entry.Ref, target, amount)
	if err != nil {
		return replyError(c, "mint", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("target", target.Hex()).
		Str("asset", entry.Ref.String()).
		Str("amount", amount.String()).
		Str("operation", "mint").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ 操作成功\n\n"+
			"👤 用户: %s\n"+
			"➕ 添加: %s %s\n"+
			"💰 当前余额: %s %s",
		h.accountService.DisplayName(ctx, target),
		service.FormatUnits(amount, entry.Decimals), entry.Symbol,
		service.FormatUnits(balance, entry.Decimals), entry.Symbol,
	))
}

// parseTarget accepts a Telegram user ID as well as anything Resolve takes.
func (h *AdminHandler) parseTarget(ctx context.Context, arg string) (common.Address, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return service.IdentityFor(id), nil
	}
	return h.accountService.Resolve(ctx, arg)
}

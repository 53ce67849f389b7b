package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/game/consensus"
	"wager-bot/internal/model"
	"wager-bot/internal/service"
)

// WagerHandler handles the escrowed game commands.
type WagerHandler struct {
	accountService *service.AccountService
	wagerService   *service.WagerService
}

// NewWagerHandler creates a new WagerHandler.
func NewWagerHandler(accountService *service.AccountService, wagerService *service.WagerService) *WagerHandler {
	return &WagerHandler{
		accountService: accountService,
		wagerService:   wagerService,
	}
}

// HandleCreate handles the /create command.
// Format: /create <buy_in> <max_players> [asset] [@judge...]
func (h *WagerHandler) HandleCreate(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /create <买入金额> <人数上限> [资产] [@裁判...]\n例如: /create 0.1 4 ETH @judge")
	}

	maxPlayers, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Reply("❌ 人数上限格式错误，请输入整数")
	}

	rest := args[2:]
	symbol := ""
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "@") && !common.IsHexAddress(rest[0]) {
		symbol, rest = rest[0], rest[1:]
	}

	host, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "create", err)
	}
	judges, err := resolveTargets(ctx, h.accountService, c, rest)
	if err != nil {
		return replyError(c, "create", err)
	}

	code, err := h.wagerService.Create(ctx, host.Address, args[0], symbol, maxPlayers, judges)
	if err != nil {
		return replyError(c, "create", err)
	}

	rec, err := h.wagerService.Game(code)
	if err != nil {
		return replyError(c, "create", err)
	}
	return c.Reply("🎲 对局已创建\n\n"+h.formatGame(ctx, rec)+"\n\n邀请玩家点击加入或发送 /join "+code, GameKeyboard(rec))
}

// HandleJudges handles the /judges command.
// Format: /judges <code> @judge...
func (h *WagerHandler) HandleJudges(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /judges <对局码> @裁判...")
	}

	caller, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "judges", err)
	}
	judges, err := resolveTargets(ctx, h.accountService, c, args[1:])
	if err != nil {
		return replyError(c, "judges", err)
	}
	if err := h.wagerService.SetJudges(ctx, args[0], caller.Address, judges); err != nil {
		return replyError(c, "judges", err)
	}
	return c.Reply(fmt.Sprintf("⚖️ 裁判已更新，共 %d 位", len(judges)))
}

// HandleJoin handles the /join command.
func (h *WagerHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /join <对局码>")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "join", err)
	}
	rec, err := h.wagerService.Join(ctx, args[0], user.Address)
	if err != nil {
		return replyError(c, "join", err)
	}

	if !isPlayer(rec, user.Address) {
		return c.Reply("⚖️ 你以裁判身份加入了对局 " + rec.Code)
	}
	return c.Reply(fmt.Sprintf(
		"✅ 已加入对局 %s\n"+
			"💸 买入: %s\n"+
			"👥 玩家: %d/%d\n"+
			"🏆 奖池: %s",
		rec.Code,
		h.wagerService.Format(rec.Asset, rec.BuyIn),
		len(rec.Roster.Players), rec.Roster.MaxPlayers,
		h.wagerService.Format(rec.Asset, rec.Pot),
	))
}

// HandleAddPot handles the /addpot command.
// Format: /addpot <code> <amount>
func (h *WagerHandler) HandleAddPot(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /addpot <对局码> <金额>")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "addpot", err)
	}
	if _, err := h.wagerService.AddToPot(ctx, args[0], user.Address, args[1]); err != nil {
		return replyError(c, "addpot", err)
	}
	rec, err := h.wagerService.Game(args[0])
	if err != nil {
		return replyError(c, "addpot", err)
	}
	return c.Reply("🏆 奖池已增加，当前: " + h.wagerService.Format(rec.Asset, rec.Pot))
}

// HandleLock handles the /lock command.
func (h *WagerHandler) HandleLock(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /lock <对局码>")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "lock", err)
	}
	if err := h.wagerService.Lock(ctx, args[0], user.Address); err != nil {
		return replyError(c, "lock", err)
	}
	return c.Reply("🔒 对局已锁定，玩家和裁判现在可以用 /report 报告结果")
}

// HandleSplits handles the /splits command.
// Format: /splits <code> <thousandths...>
func (h *WagerHandler) HandleSplits(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /splits <对局码> <千分比...>\n例如: /splits AB3-7KQ 600 300 100")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "splits", err)
	}
	splits, err := h.wagerService.SetSplits(ctx, args[0], user.Address, args[1:])
	if err != nil {
		return replyError(c, "splits", err)
	}
	return c.Reply("📊 奖金分配已设置: " + formatSplits(splits))
}

// HandleKick handles the /kick command. The removed player is refunded.
func (h *WagerHandler) HandleKick(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /kick <对局码> @玩家")
	}

	caller, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "kick", err)
	}
	targets, err := resolveTargets(ctx, h.accountService, c, args[1:])
	if err != nil {
		return replyError(c, "kick", err)
	}
	if len(targets) != 1 {
		return c.Reply("❌ 请指定一位玩家")
	}
	if err := h.wagerService.Remove(ctx, args[0], caller.Address, targets[0]); err != nil {
		return replyError(c, "kick", err)
	}
	return c.Reply("👋 " + h.accountService.DisplayName(ctx, targets[0]) + " 已被移除，买入已退还")
}

// HandleLeave handles the /leave command.
func (h *WagerHandler) HandleLeave(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /leave <对局码>")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "leave", err)
	}
	if err := h.wagerService.Remove(ctx, args[0], user.Address, user.Address); err != nil {
		return replyError(c, "leave", err)
	}
	return c.Reply("👋 你已退出对局，买入已退还")
}

// HandleReport handles the /report command.
// Format: /report <code> @first [@second...]
func (h *WagerHandler) HandleReport(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ 用法: /report <对局码> @第一名 [@第二名...]")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "report", err)
	}
	winners, err := resolveTargets(ctx, h.accountService, c, args[1:])
	if err != nil {
		return replyError(c, "report", err)
	}
	rec, err := h.wagerService.Report(ctx, args[0], user.Address, winners)
	if err != nil {
		return replyError(c, "report", err)
	}

	if rec.Confirmed() {
		log.Info().Str("code", rec.Code).Int("winners", len(rec.Consensus.Winners)).Msg("Winners confirmed in chat")
		return c.Reply("🏁 结果已确认！\n\n"+h.formatGame(ctx, rec)+"\n\n获胜者发送 /claim "+rec.Code+" 领取奖金", GameKeyboard(rec))
	}

	support := rec.Consensus.Support[consensus.HashReport(winners)]
	return c.Reply(fmt.Sprintf("🗳 已记录，该结果当前 %d 票，需要 %d 票", support, consensus.Quorum(rec.Voters())))
}

// HandleClaim handles the /claim command.
func (h *WagerHandler) HandleClaim(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /claim <对局码>")
	}

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return replyError(c, "claim", err)
	}
	amount, rec, err := h.wagerService.Claim(ctx, args[0], user.Address)
	if err != nil {
		return replyError(c, "claim", err)
	}
	return c.Reply("💰 已领取 " + h.wagerService.Format(rec.Asset, amount))
}

// HandleGame handles the /game command.
func (h *WagerHandler) HandleGame(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ 用法: /game <对局码>")
	}

	rec, err := h.wagerService.Game(args[0])
	if err != nil {
		return replyError(c, "game", err)
	}
	return c.Reply(h.formatGame(ctx, rec), GameKeyboard(rec))
}

// HandleCallback handles the inline buttons under a game card.
func (h *WagerHandler) HandleCallback(c tele.Context) error {
	ctx := context.Background()
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	action, code := DecodeCallback(callback.Data)
	if action == "" {
		return c.Respond(&tele.CallbackResponse{Text: "❌ 未知操作"})
	}
	log.Debug().Str("action", action).Str("code", code).Msg("Game card callback")

	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ " + errorText(action, err), ShowAlert: true})
	}

	var notice string
	switch action {
	case ActionJoin:
		rec, err := h.wagerService.Join(ctx, code, user.Address)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ " + errorText(action, err), ShowAlert: true})
		}
		notice = "✅ 已加入，买入 " + h.wagerService.Format(rec.Asset, rec.BuyIn)
		if !isPlayer(rec, user.Address) {
			notice = "⚖️ 你以裁判身份加入"
		}
	case ActionLock:
		if err := h.wagerService.Lock(ctx, code, user.Address); err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ " + errorText(action, err), ShowAlert: true})
		}
		notice = "🔒 对局已锁定"
	case ActionClaim:
		amount, rec, err := h.wagerService.Claim(ctx, code, user.Address)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ " + errorText(action, err), ShowAlert: true})
		}
		notice = "💰 已领取 " + h.wagerService.Format(rec.Asset, amount)
	case ActionRefresh:
	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ 未知操作"})
	}

	rec, err := h.wagerService.Game(code)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ " + errorText(action, err), ShowAlert: true})
	}
	if err := c.Edit(h.formatGame(ctx, rec), GameKeyboard(rec)); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		log.Warn().Err(err).Str("code", code).Msg("Failed to refresh game card")
	}
	return c.Respond(&tele.CallbackResponse{Text: notice})
}

var statusLabels = map[string]string{
	model.StatusOpen:      "🟢 报名中",
	model.StatusLocked:    "🔒 已锁定",
	model.StatusConfirmed: "🏁 已确认",
}

func (h *WagerHandler) formatGame(ctx context.Context, rec *model.GameRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎲 对局 %s  %s\n", rec.Code, statusLabels[rec.Status()])
	b.WriteString("━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "👑 房主: %s\n", h.accountService.DisplayName(ctx, rec.Host))
	fmt.Fprintf(&b, "💸 买入: %s\n", h.wagerService.Format(rec.Asset, rec.BuyIn))
	fmt.Fprintf(&b, "🏆 奖池: %s\n", h.wagerService.Format(rec.Asset, rec.Pot))
	fmt.Fprintf(&b, "👥 玩家 %d/%d: %s\n", len(rec.Roster.Players), rec.Roster.MaxPlayers, h.names(ctx, rec.Roster.Players))
	if len(rec.Roster.Judges) > 0 {
		fmt.Fprintf(&b, "⚖️ 裁判: %s\n", h.names(ctx, rec.Roster.Judges))
	}
	if len(rec.Splits) > 0 {
		fmt.Fprintf(&b, "📊 分配: %s\n", formatSplits(rec.Splits))
	}
	if rec.Confirmed() {
		medals := []string{"🥇", "🥈", "🥉"}
		for i, w := range rec.Consensus.Winners {
			rank := fmt.Sprintf("%d.", i+1)
			if i < len(medals) {
				rank = medals[i]
			}
			fmt.Fprintf(&b, "%s %s\n", rank, h.accountService.DisplayName(ctx, w))
		}
	}
	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}

func (h *WagerHandler) names(ctx context.Context, ids []common.Address) string {
	if len(ids) == 0 {
		return "无"
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = h.accountService.DisplayName(ctx, id)
	}
	return strings.Join(names, ", ")
}

func formatSplits(splits []uint16) string {
	parts := make([]string, len(splits))
	for i, s := range splits {
		parts[i] = fmt.Sprintf("第%d名 %.1f%%", i+1, float64(s)/10)
	}
	return strings.Join(parts, " / ")
}

func isPlayer(rec *model.GameRecord, who common.Address) bool {
	for _, p := range rec.Roster.Players {
		if p == who {
			return true
		}
	}
	return false
}

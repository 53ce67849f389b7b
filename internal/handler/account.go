// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/asset"
	"wager-bot/internal/model"
	"wager-bot/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
	allowList      *asset.AllowList
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, allowList *asset.AllowList) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		allowList:      allowList,
	}
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// ensureSender registers the sender and returns their identity.
func ensureSender(ctx context.Context, accounts *service.AccountService, c tele.Context) (*model.User, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, fmt.Errorf("message has no sender")
	}
	user, _, err := accounts.EnsureUser(ctx, sender.ID, displayName(sender))
	return user, err
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender))
	if err != nil {
		return c.Reply("❌ 创建账户失败，请稍后重试")
	}

	greeting := fmt.Sprintf("👋 欢迎回来 @%s！", user.Username)
	if created {
		greeting = fmt.Sprintf("🎉 欢迎 @%s！你的账户已创建。", user.Username)
	}

	return c.Reply(greeting + "\n\n" +
		"🔑 地址: " + user.Address.Hex() + "\n\n" +
		"可用命令:\n" +
		"/wallet - 查看余额\n" +
		"/create <买入> <人数上限> [资产] [@裁判...] - 创建对局\n" +
		"/join <对局码> - 加入对局\n" +
		"/addpot <对局码> <金额> - 追加奖池\n" +
		"/judges <对局码> @裁判... - 设置裁判\n" +
		"/splits <对局码> <千分比...> - 设置奖金分配\n" +
		"/lock <对局码> - 锁定对局\n" +
		"/kick <对局码> @玩家 - 移除玩家并退款\n" +
		"/leave <对局码> - 退出并退款\n" +
		"/report <对局码> @第一名 [@第二名...] - 报告结果\n" +
		"/claim <对局码> - 领取奖金\n" +
		"/game <对局码> - 查看对局")
}

// HandleWallet handles the /wallet command.
func (h *AccountHandler) HandleWallet(c tele.Context) error {
	ctx := context.Background()
	user, err := ensureSender(ctx, h.accountService, c)
	if err != nil {
		return c.Reply("❌ 获取账户信息失败，请稍后重试")
	}

	var b strings.Builder
	b.WriteString("💼 钱包\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")
	b.WriteString("🔑 " + user.Address.Hex() + "\n")
	for _, e := range h.allowList.Entries() {
		bal, err := h.accountService.Balance(ctx, e.Ref, user.Address)
		if err != nil {
			return replyError(c, "wallet", err)
		}
		fmt.Fprintf(&b, "💰 %s %s\n", service.FormatUnits(bal, e.Decimals), e.Symbol)
	}
	b.WriteString("━━━━━━━━━━━━━━━")
	return c.Reply(b.String())
}

// resolveTargets maps "@name" or hex arguments onto identities. A reply to a
// message adds its author when no argument names anyone.
func resolveTargets(ctx context.Context, accounts *service.AccountService, c tele.Context, args []string) ([]common.Address, error) {
	targets := make([]common.Address, 0, len(args))
	for _, a := range args {
		addr, err := accounts.Resolve(ctx, a)
		if err != nil {
			return nil, err
		}
		targets = append(targets, addr)
	}

	if len(targets) == 0 && c.Message() != nil && c.Message().ReplyTo != nil {
		if author := c.Message().ReplyTo.Sender; author != nil && !author.IsBot {
			user, _, err := accounts.EnsureUser(ctx, author.ID, displayName(author))
			if err != nil {
				return nil, err
			}
			targets = append(targets, user.Address)
		}
	}
	return targets, nil
}

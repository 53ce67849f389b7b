package handler

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/asset"
	"wager-bot/internal/codegen"
	"wager-bot/internal/game"
	"wager-bot/internal/service"
)

// fakeContext implements the parts of tele.Context the command handlers touch.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	args    []string
	replies []string
}

func (f *fakeContext) Sender() *tele.User       { return f.sender }
func (f *fakeContext) Args() []string           { return f.args }
func (f *fakeContext) Message() *tele.Message   { return nil }
func (f *fakeContext) Callback() *tele.Callback { return nil }

func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

func (f *fakeContext) lastReply() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type chatFixture struct {
	t        *testing.T
	vault    *asset.Vault
	registry *game.Registry
	accounts *service.AccountService
	handler  *WagerHandler
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	vault := asset.NewVault()
	wallets := service.VaultWallets{Vault: vault}
	allow := asset.NewAllowList("ETH", 18)
	reg := game.NewRegistry(codegen.New(codegen.NewMemoryStore()), allow, vault)
	accounts := service.NewAccountService(service.NewMemoryUsers(), wallets, nil)
	return &chatFixture{
		t:        t,
		vault:    vault,
		registry: reg,
		accounts: accounts,
		handler:  NewWagerHandler(accounts, service.NewWagerService(reg, allow, wallets)),
	}
}

// user registers a chat member holding 10 ETH.
func (f *chatFixture) user(id int64, name string) *tele.User {
	f.t.Helper()
	u, _, err := f.accounts.EnsureUser(context.Background(), id, name)
	require.NoError(f.t, err)
	f.vault.Mint(asset.Native(), u.Address, new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)))
	return &tele.User{ID: id, Username: name}
}

// run invokes a command handler as sender and returns its reply.
func (f *chatFixture) run(cmd func(tele.Context) error, sender *tele.User, args ...string) string {
	f.t.Helper()
	c := &fakeContext{sender: sender, args: args}
	require.NoError(f.t, cmd(c))
	require.Len(f.t, c.replies, 1)
	return c.lastReply()
}

// code returns the only game in the registry.
func (f *chatFixture) code() string {
	f.t.Helper()
	codes := f.registry.Codes()
	require.Len(f.t, codes, 1)
	return codes[0]
}

func addr(u *tele.User) string {
	return service.IdentityFor(u.ID).Hex()
}

func TestReportQuorumWithJudges(t *testing.T) {
	f := newChatFixture(t)
	host := f.user(1, "host")
	j1 := f.user(2, "judge1")
	j2 := f.user(3, "judge2")
	players := []*tele.User{f.user(4, "p1"), f.user(5, "p2"), f.user(6, "p3")}

	reply := f.run(f.handler.HandleCreate, host, "1", "3", "@judge1", "@judge2")
	assert.Contains(t, reply, "对局已创建")
	code := f.code()

	for _, p := range players {
		assert.Contains(t, f.run(f.handler.HandleJoin, p, code), "已加入对局")
	}
	assert.Contains(t, f.run(f.handler.HandleLock, host, code), "对局已锁定")

	// Two judges vote, so two reports confirm regardless of the three players.
	reply = f.run(f.handler.HandleReport, j1, code, addr(players[0]))
	assert.Equal(t, "🗳 已记录，该结果当前 1 票，需要 2 票", reply)

	reply = f.run(f.handler.HandleReport, players[1], code, addr(players[1]))
	assert.Equal(t, "❌ 只有玩家或裁判可以报告结果", reply)

	reply = f.run(f.handler.HandleReport, j2, code, addr(players[0]))
	assert.True(t, strings.HasPrefix(reply, "🏁 结果已确认"), reply)

	assert.Equal(t, "💰 已领取 3 ETH", f.run(f.handler.HandleClaim, players[0], code))
	assert.Equal(t, "❌ 你已经领取过奖金了", f.run(f.handler.HandleClaim, players[0], code))
}

func TestReportQuorumWithoutJudges(t *testing.T) {
	f := newChatFixture(t)
	host := f.user(1, "host")
	players := []*tele.User{f.user(4, "p1"), f.user(5, "p2"), f.user(6, "p3"), f.user(7, "p4")}

	f.run(f.handler.HandleCreate, host, "1", "4")
	code := f.code()
	for _, p := range players {
		f.run(f.handler.HandleJoin, p, code)
	}
	f.run(f.handler.HandleLock, host, code)

	// Four players: a strict majority is three.
	reply := f.run(f.handler.HandleReport, players[0], code, addr(players[0]))
	assert.Equal(t, "🗳 已记录，该结果当前 1 票，需要 3 票", reply)
	reply = f.run(f.handler.HandleReport, players[1], code, addr(players[0]))
	assert.Equal(t, "🗳 已记录，该结果当前 2 票，需要 3 票", reply)

	reply = f.run(f.handler.HandleGame, host, code)
	assert.Contains(t, reply, code)
	assert.Contains(t, reply, "🔒 已锁定")
	assert.Contains(t, reply, "👥 玩家 4/4")
}

func TestCommandUsageAndErrors(t *testing.T) {
	f := newChatFixture(t)
	host := f.user(1, "host")

	assert.True(t, strings.HasPrefix(f.run(f.handler.HandleCreate, host, "1"), "❌ 用法: /create"))
	assert.Equal(t, "❌ 人数上限格式错误，请输入整数", f.run(f.handler.HandleCreate, host, "1", "many"))
	assert.Equal(t, "❌ 找不到该对局", f.run(f.handler.HandleJoin, host, "ZZZ-999"))
	assert.Equal(t, "❌ 对局码格式错误，例如 AB3-7KQ", f.run(f.handler.HandleGame, host, "nope"))

	f.run(f.handler.HandleCreate, host, "1", "2")
	code := f.code()
	other := f.user(2, "other")
	assert.Equal(t, "❌ 只有房主可以执行此操作", f.run(f.handler.HandleLock, other, code))
	assert.Equal(t, "❌ 结果尚未确认", f.run(f.handler.HandleClaim, other, code))
}

func TestLeaveRefundsBuyIn(t *testing.T) {
	f := newChatFixture(t)
	host := f.user(1, "host")
	p1 := f.user(2, "p1")

	f.run(f.handler.HandleCreate, host, "2", "3")
	code := f.code()
	f.run(f.handler.HandleJoin, p1, code)

	who := common.HexToAddress(addr(p1))
	before := f.vault.BalanceOf(asset.Native(), who)
	assert.Equal(t, "👋 你已退出对局，买入已退还", f.run(f.handler.HandleLeave, p1, code))
	assert.Equal(t, new(big.Int).Add(before, new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))), f.vault.BalanceOf(asset.Native(), who))
}

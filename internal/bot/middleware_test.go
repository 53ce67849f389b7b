package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"wager-bot/internal/config"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	chat    *tele.Chat
	sender  *tele.User
	text    string
	replies []string
}

func (f *fakeContext) Chat() *tele.Chat   { return f.chat }
func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Text() string       { return f.text }

func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

func groupMessage(chatID, userID int64) *fakeContext {
	return &fakeContext{
		chat:   &tele.Chat{ID: chatID, Type: tele.ChatGroup},
		sender: &tele.User{ID: userID},
		text:   "/game AB3-7KQ",
	}
}

func privateMessage(userID int64) *fakeContext {
	return &fakeContext{
		chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		sender: &tele.User{ID: userID},
		text:   "/wallet",
	}
}

// run passes c through mw and reports whether the handler was reached.
func run(mw tele.MiddlewareFunc, c tele.Context) (bool, error) {
	reached := false
	err := mw(func(tele.Context) error {
		reached = true
		return nil
	})(c)
	return reached, err
}

func TestAdminMiddleware(t *testing.T) {
	cfg := &config.Config{Admin: config.AdminConfig{IDs: []int64{7}}}
	mw := AdminMiddleware(cfg)

	admin := groupMessage(-1, 7)
	reached, err := run(mw, admin)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Empty(t, admin.replies)

	stranger := groupMessage(-1, 8)
	reached, err = run(mw, stranger)
	require.NoError(t, err)
	assert.False(t, reached)
	require.Len(t, stranger.replies, 1)
	assert.Contains(t, stranger.replies[0], "权限不足")
}

func TestWhitelistMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := rapid.SliceOfNDistinct(rapid.Int64Range(-1000, -1), 0, 5, rapid.ID[int64]).Draw(t, "chats")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}
		mw := WhitelistMiddleware(cfg, &PrivateAccess{})

		chatID := rapid.Int64Range(-1000, -1).Draw(t, "chatID")
		reached, err := run(mw, groupMessage(chatID, 42))
		if err != nil {
			t.Fatal(err)
		}
		if reached != cfg.IsChatAllowed(chatID) {
			t.Fatalf("chat %d reached=%v with whitelist %v", chatID, reached, chats)
		}
	})
}

func TestWhitelistPrivateAccess(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	access := &PrivateAccess{}
	mw := WhitelistMiddleware(cfg, access)

	reached, err := run(mw, privateMessage(5))
	require.NoError(t, err)
	assert.False(t, reached, "unknown users cannot talk in private")

	reached, err = run(mw, groupMessage(-200, 5))
	require.NoError(t, err)
	assert.False(t, reached)
	assert.False(t, access.Allowed(5), "a rejected group does not grant private access")

	reached, err = run(mw, groupMessage(-100, 5))
	require.NoError(t, err)
	assert.True(t, reached)

	reached, err = run(mw, privateMessage(5))
	require.NoError(t, err)
	assert.True(t, reached)

	open := WhitelistMiddleware(&config.Config{}, &PrivateAccess{})
	reached, err = run(open, privateMessage(6))
	require.NoError(t, err)
	assert.True(t, reached, "an empty whitelist allows private chats")
}

func TestRecoveryMiddleware(t *testing.T) {
	c := groupMessage(-1, 1)
	err := RecoveryMiddleware()(func(tele.Context) error {
		panic("boom")
	})(c)
	require.NoError(t, err)
	require.Len(t, c.replies, 1)
	assert.Contains(t, c.replies[0], "内部错误")
}

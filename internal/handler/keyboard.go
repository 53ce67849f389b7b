package handler

import (
	"strings"

	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/model"
)

// CallbackPrefix marks inline button data belonging to game cards.
const CallbackPrefix = "wager_"

// Game card actions.
const (
	ActionJoin    = "join"
	ActionLock    = "lock"
	ActionClaim   = "claim"
	ActionRefresh = "refresh"
)

// EncodeCallback packs an action and a game code into callback data.
func EncodeCallback(action, code string) string {
	return CallbackPrefix + action + "_" + code
}

// DecodeCallback splits callback data into action and game code. Foreign
// data yields empty strings.
func DecodeCallback(data string) (action, code string) {
	data = strings.TrimPrefix(data, "\f")
	if !strings.HasPrefix(data, CallbackPrefix) {
		return "", ""
	}
	action, code, _ = strings.Cut(strings.TrimPrefix(data, CallbackPrefix), "_")
	return action, code
}

// GameKeyboard builds the inline buttons under a game card. The buttons
// follow the game's phase:
//   - open:      [加入] [锁定] / [刷新]
//   - locked:    [刷新]
//   - confirmed: [领取] [刷新]
func GameKeyboard(rec *model.GameRecord) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	refresh := tele.InlineButton{Text: "🔄 刷新", Data: EncodeCallback(ActionRefresh, rec.Code)}

	switch rec.Status() {
	case model.StatusOpen:
		markup.InlineKeyboard = [][]tele.InlineButton{
			{
				{Text: "✅ 加入", Data: EncodeCallback(ActionJoin, rec.Code)},
				{Text: "🔒 锁定", Data: EncodeCallback(ActionLock, rec.Code)},
			},
			{refresh},
		}
	case model.StatusConfirmed:
		markup.InlineKeyboard = [][]tele.InlineButton{
			{
				{Text: "💰 领取", Data: EncodeCallback(ActionClaim, rec.Code)},
				refresh,
			},
		}
	default:
		markup.InlineKeyboard = [][]tele.InlineButton{{refresh}}
	}
	return markup
}

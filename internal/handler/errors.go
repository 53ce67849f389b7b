package handler

import (
	"errors"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-bot/internal/game"
	"wager-bot/internal/pkg/errkind"
	"wager-bot/internal/pkg/lock"
	"wager-bot/internal/service"
)

// errorMessages maps well-known failures onto replies.
var errorMessages = []struct {
	err error
	msg string
}{
	{game.ErrNoSuchGame, "找不到该对局"},
	{game.ErrMalformedCode, "对局码格式错误，例如 AB3-7KQ"},
	{game.ErrNotHost, "只有房主可以执行此操作"},
	{game.ErrAssetNotAllowed, "该资产未被允许"},
	{game.ErrAlreadyJoined, "你已经加入了该对局"},
	{game.ErrGameFull, "对局人数已满"},
	{game.ErrGameLocked, "对局已锁定"},
	{game.ErrAlreadyLocked, "对局已经锁定过了"},
	{game.ErrNotLocked, "对局尚未锁定，暂不能报告结果"},
	{game.ErrNotAParticipant, "该用户不是玩家"},
	{game.ErrInvalidJudge, "裁判无效：不能是玩家或空地址"},
	{game.ErrInvalidMaxPlayers, "人数上限至少为 2"},
	{game.ErrAlreadyConfirmed, "结果已确认"},
	{game.ErrNotEligibleVoter, "只有玩家或裁判可以报告结果"},
	{game.ErrInvalidWinnerList, "获胜名单无效：需为不重复的玩家"},
	{game.ErrInvalidSplitSum, "奖金分配之和必须为 1000"},
	{game.ErrNotConfirmed, "结果尚未确认"},
	{game.ErrNotAWinner, "你不在获胜名单中"},
	{game.ErrNoPrizeForRank, "该名次没有奖金"},
	{game.ErrAlreadyClaimed, "你已经领取过奖金了"},
	{game.ErrAmountMismatch, "支付金额与要求不符"},
	{game.ErrInvalidAmount, "金额无效"},
	{game.ErrInsufficientPot, "奖池余额不足"},
	{game.ErrExhaustedAttempts, "暂时无法生成对局码，请稍后重试"},
	{service.ErrInvalidAmount, "金额格式错误"},
	{service.ErrUnknownAsset, "未知资产"},
	{service.ErrInvalidSplits, "奖金分配格式错误，例如: 600 300 100"},
	{service.ErrUserNotFound, "找不到该用户，请确保对方使用过本机器人"},
	{lock.ErrLockTimeout, "对局繁忙，请稍后重试"},
}

// replyError answers a failed command.
func replyError(c tele.Context, op string, err error) error {
	return c.Reply("❌ " + errorText(op, err))
}

// errorText describes a failure. Known errors get their own message; the
// rest are reported by category.
func errorText(op string, err error) string {
	if errors.Is(err, errkind.ErrTransfer) {
		log.Warn().Err(err).Str("op", op).Msg("Transfer failed")
		return "转账失败，余额不足或对方拒收，状态未改变"
	}

	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}

	switch errkind.Of(err) {
	case errkind.ErrValidation:
		return "参数错误: " + err.Error()
	case errkind.ErrAuthorization:
		return "无权执行: " + err.Error()
	case errkind.ErrStateConflict:
		return "当前状态不允许: " + err.Error()
	}

	log.Error().Err(err).Str("op", op).Msg("Command failed")
	return "操作失败，请稍后重试"
}

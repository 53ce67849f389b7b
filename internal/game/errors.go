package game

import (
	"wager-bot/internal/codegen"
	"wager-bot/internal/escrow"
	"wager-bot/internal/game/consensus"
	"wager-bot/internal/game/payout"
	"wager-bot/internal/game/roster"
	"wager-bot/internal/pkg/errkind"
)

// Registry-level errors.
var (
	ErrNoSuchGame      = errkind.New(errkind.ErrValidation, "no such game")
	ErrNotHost         = errkind.New(errkind.ErrAuthorization, "only the host may do this")
	ErrNotLocked       = errkind.New(errkind.ErrStateConflict, "game is not locked")
	ErrNotConfirmed    = errkind.New(errkind.ErrStateConflict, "winners not confirmed yet")
	ErrAssetNotAllowed = errkind.New(errkind.ErrValidation, "asset not allowed")
)

// Errors raised by the components a game is made of, re-exported so callers
// match against one package.
var (
	ErrMalformedCode     = codegen.ErrMalformedCode
	ErrExhaustedAttempts = codegen.ErrExhaustedAttempts

	ErrAmountMismatch  = escrow.ErrAmountMismatch
	ErrInvalidAmount   = escrow.ErrInvalidAmount
	ErrTransferFailed  = escrow.ErrTransferFailed
	ErrInsufficientPot = escrow.ErrInsufficientPot

	ErrInvalidMaxPlayers = roster.ErrInvalidMaxPlayer
	ErrInvalidJudge      = roster.ErrInvalidJudge
	ErrAlreadyJoined     = roster.ErrAlreadyJoined
	ErrGameFull          = roster.ErrGameFull
	ErrGameLocked        = roster.ErrGameLocked
	ErrAlreadyLocked     = roster.ErrAlreadyLocked
	ErrNotAParticipant   = roster.ErrNotAParticipant

	ErrAlreadyConfirmed  = consensus.ErrAlreadyConfirmed
	ErrNotEligibleVoter  = consensus.ErrNotEligibleVoter
	ErrInvalidWinnerList = consensus.ErrInvalidWinnerList

	ErrInvalidSplitSum = payout.ErrInvalidSplitSum
	ErrNotAWinner      = payout.ErrNotAWinner
	ErrNoPrizeForRank  = payout.ErrNoPrizeForRank
	ErrAlreadyClaimed  = payout.ErrAlreadyClaimed
)

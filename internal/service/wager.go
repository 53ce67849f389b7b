package service

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wager-bot/internal/asset"
	"wager-bot/internal/codegen"
	"wager-bot/internal/game"
	"wager-bot/internal/model"
	"wager-bot/internal/pkg/errkind"
)

// Wager errors raised while parsing chat input.
var (
	ErrInvalidAmount = errkind.New(errkind.ErrValidation, "invalid amount")
	ErrUnknownAsset  = errkind.New(errkind.ErrValidation, "unknown asset")
	ErrInvalidSplits = errkind.New(errkind.ErrValidation, "splits must be whole thousandths")
)

// WagerService adapts chat-level requests onto the game registry. Amounts
// arrive in display units and are converted with the asset's decimals.
type WagerService struct {
	registry  *game.Registry
	allowList *asset.AllowList
	approver  Approver
}

// NewWagerService creates a new WagerService. wallets may be nil; when it
// implements Approver, token pulls are approved on the payer's behalf.
func NewWagerService(registry *game.Registry, allowList *asset.AllowList, wallets Wallets) *WagerService {
	s := &WagerService{registry: registry, allowList: allowList}
	if a, ok := wallets.(Approver); ok {
		s.approver = a
	}
	return s
}

// Entry resolves a symbol, "native" or a token address onto an allow-list entry.
// An empty string means the native asset.
func (s *WagerService) Entry(symbol string) (asset.Entry, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		e, _ := s.allowList.Lookup(asset.Native())
		return e, nil
	}
	if e, ok := s.allowList.BySymbol(symbol); ok {
		return e, nil
	}
	ref, err := asset.ParseRef(symbol)
	if err != nil {
		return asset.Entry{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	e, ok := s.allowList.Lookup(ref)
	if !ok {
		return asset.Entry{}, game.ErrAssetNotAllowed
	}
	return e, nil
}

// ParseUnits converts a display amount to smallest units. Zero is allowed;
// fractions finer than the asset's decimals are not.
func ParseUnits(text string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	units := d.Shift(decimals)
	if units.IsNegative() || !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return units.BigInt(), nil
}

// FormatUnits renders smallest units in display form.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// Format renders amount of ref with its symbol.
func (s *WagerService) Format(ref asset.Ref, amount *big.Int) string {
	e, ok := s.allowList.Lookup(ref)
	if !ok {
		return amount.String() + " " + ref.String()
	}
	return FormatUnits(amount, e.Decimals) + " " + e.Symbol
}

// Create opens a game with a buy-in given in display units of symbol.
func (s *WagerService) Create(ctx context.Context, host common.Address, buyIn, symbol string, maxPlayers int, judges []common.Address) (string, error) {
	e, err := s.Entry(symbol)
	if err != nil {
		return "", err
	}
	amount, err := ParseUnits(buyIn, e.Decimals)
	if err != nil {
		return "", err
	}
	return s.registry.Create(ctx, host, game.CreateRequest{
		BuyIn:      amount,
		Asset:      e.Ref,
		MaxPlayers: maxPlayers,
		Judges:     judges,
	})
}

// Game returns the record of code.
func (s *WagerService) Game(code string) (*model.GameRecord, error) {
	return s.registry.GameInfo(codegen.Normalize(code))
}

// Join pays the buy-in of code on who's behalf. Judges join for free.
func (s *WagerService) Join(ctx context.Context, code string, who common.Address) (*model.GameRecord, error) {
	rec, err := s.Game(code)
	if err != nil {
		return nil, err
	}

	amount := rec.BuyIn
	for _, j := range rec.Roster.Judges {
		if j == who {
			amount = new(big.Int)
		}
	}
	if err := s.authorize(ctx, rec.Asset, who, amount); err != nil {
		return nil, err
	}

	if err := s.registry.Join(ctx, rec.Code, who, attached(rec.Asset, amount)); err != nil {
		s.release(ctx, rec.Asset, who, amount)
		return nil, err
	}
	return s.Game(rec.Code)
}

// AddToPot adds a display amount to the pot of code.
func (s *WagerService) AddToPot(ctx context.Context, code string, who common.Address, text string) (*big.Int, error) {
	rec, err := s.Game(code)
	if err != nil {
		return nil, err
	}
	e, ok := s.allowList.Lookup(rec.Asset)
	if !ok {
		return nil, game.ErrAssetNotAllowed
	}
	amount, err := ParseUnits(text, e.Decimals)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, rec.Asset, who, amount); err != nil {
		return nil, err
	}
	if err := s.registry.AddToPot(ctx, rec.Code, who, amount, attached(rec.Asset, amount)); err != nil {
		s.release(ctx, rec.Asset, who, amount)
		return nil, err
	}
	return amount, nil
}

// Lock freezes membership of code.
func (s *WagerService) Lock(ctx context.Context, code string, who common.Address) error {
	return s.registry.Lock(ctx, codegen.Normalize(code), who)
}

// SetSplits parses thousandths such as "600 300 100" and installs them.
func (s *WagerService) SetSplits(ctx context.Context, code string, who common.Address, args []string) ([]uint16, error) {
	splits := make([]uint16, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(strings.TrimSuffix(a, ","), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSplits, a)
		}
		splits = append(splits, uint16(n))
	}
	if err := s.registry.SetPrizeSplits(ctx, codegen.Normalize(code), who, splits); err != nil {
		return nil, err
	}
	return splits, nil
}

// SetJudges replaces the judges of code.
func (s *WagerService) SetJudges(ctx context.Context, code string, who common.Address, judges []common.Address) error {
	return s.registry.SetJudges(ctx, codegen.Normalize(code), who, judges)
}

// Remove refunds and unseats participant.
func (s *WagerService) Remove(ctx context.Context, code string, who, participant common.Address) error {
	return s.registry.Remove(ctx, codegen.Normalize(code), who, participant)
}

// Report records who's winner ranking and returns the resulting record.
func (s *WagerService) Report(ctx context.Context, code string, who common.Address, winners []common.Address) (*model.GameRecord, error) {
	code = codegen.Normalize(code)
	if err := s.registry.Report(ctx, code, who, winners); err != nil {
		return nil, err
	}
	return s.registry.GameInfo(code)
}

// Claim pays who's prize in code.
func (s *WagerService) Claim(ctx context.Context, code string, who common.Address) (*big.Int, *model.GameRecord, error) {
	code = codegen.Normalize(code)
	amount, err := s.registry.Claim(ctx, code, who)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.registry.GameInfo(code)
	if err != nil {
		return nil, nil, err
	}
	return amount, rec, nil
}

// Support returns how many voters back winners in code.
func (s *WagerService) Support(code string, winners []common.Address) (int, error) {
	return s.registry.Support(codegen.Normalize(code), winners)
}

func (s *WagerService) authorize(ctx context.Context, ref asset.Ref, who common.Address, amount *big.Int) error {
	if s.approver == nil || ref.IsNative() || amount.Sign() == 0 {
		return nil
	}
	return s.approver.Approve(ctx, ref, who, amount)
}

// release withdraws an approval after the registry refused the payment.
// A rejected payment never reaches the pull, so the full amount is unused.
func (s *WagerService) release(ctx context.Context, ref asset.Ref, who common.Address, amount *big.Int) {
	if s.approver == nil || ref.IsNative() || amount.Sign() == 0 {
		return
	}
	if err := s.approver.Release(ctx, ref, who, amount); err != nil {
		log.Warn().Err(err).Str("asset", ref.String()).Str("owner", who.Hex()).Msg("Failed to release allowance")
	}
}

// attached is the native value sent along with a payment of amount.
func attached(ref asset.Ref, amount *big.Int) *big.Int {
	if ref.IsNative() {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

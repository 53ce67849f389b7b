package game

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"wager-bot/internal/asset"
	"wager-bot/internal/codegen"
	"wager-bot/internal/model"
	"wager-bot/internal/pkg/errkind"
)

var (
	host = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	p1   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	p2   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	p3   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	p4   = common.HexToAddress("0x0000000000000000000000000000000000000004")
	j1   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	j2   = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	usdc = asset.Token(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
)

// recorder captures observed events.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
	last   *model.GameRecord
}

func (r *recorder) Observe(_ context.Context, ev model.Event, rec *model.GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.last = rec
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	reg   *Registry
	vault *asset.Vault
	allow *asset.AllowList
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault := asset.NewVault()
	for _, who := range []common.Address{host, p1, p2, p3, p4, j1, j2} {
		vault.Mint(asset.Native(), who, big.NewInt(10_000))
		vault.Mint(usdc, who, big.NewInt(10_000))
		vault.Approve(usdc, who, big.NewInt(10_000))
	}
	allow := asset.NewAllowList("ETH", 18)
	allow.Allow(asset.Entry{Ref: usdc, Symbol: "USDC", Decimals: 6})
	rec := &recorder{}
	reg := NewRegistry(codegen.New(codegen.NewMemoryStore()), allow, vault,
		WithObserver(rec), WithLockTimeout(time.Second))
	return &fixture{reg: reg, vault: vault, allow: allow, rec: rec}
}

func (f *fixture) create(t *testing.T, buyIn int64, maxPlayers int, judges ...common.Address) string {
	t.Helper()
	code, err := f.reg.Create(context.Background(), host, CreateRequest{
		BuyIn:      big.NewInt(buyIn),
		Asset:      asset.Native(),
		MaxPlayers: maxPlayers,
		Judges:     judges,
	})
	require.NoError(t, err)
	return code
}

func (f *fixture) join(t *testing.T, code string, buyIn int64, who ...common.Address) {
	t.Helper()
	for _, w := range who {
		require.NoError(t, f.reg.Join(context.Background(), code, w, big.NewInt(buyIn)))
	}
}

func TestScenarioWinnerTakesAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 4)
	f.join(t, code, 100, p1, p2, p3)

	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	assert.Equal(t, int64(300), info.Pot.Int64())
	for _, p := range []common.Address{p1, p2, p3} {
		assert.Equal(t, int64(100), info.Balances[p].Int64())
	}

	require.NoError(t, f.reg.Lock(ctx, code, host))
	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p1}))

	ok, err := f.reg.IsWinnerConfirmed(code, p1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p1}))
	winners, err := f.reg.ConfirmedWinners(code)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{p1}, winners)

	paid, err := f.reg.Claim(ctx, code, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), paid.Int64())
	assert.Equal(t, int64(10_200), f.vault.BalanceOf(asset.Native(), p1).Int64())

	_, err = f.reg.Claim(ctx, code, p1)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = f.reg.Claim(ctx, code, p2)
	assert.ErrorIs(t, err, ErrNotAWinner)
}

func TestScenarioSplitPrizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 250, 4)
	require.NoError(t, f.reg.SetPrizeSplits(ctx, code, host, []uint16{500, 300, 200}))
	f.join(t, code, 250, p1, p2, p3, p4)
	require.NoError(t, f.reg.Lock(ctx, code, host))

	ranking := []common.Address{p1, p2, p3}
	for _, voter := range []common.Address{p1, p2, p3} {
		require.NoError(t, f.reg.Report(ctx, code, voter, ranking))
	}

	for want, who := range map[int64]common.Address{500: p1, 300: p2, 200: p3} {
		paid, err := f.reg.Claim(ctx, code, who)
		require.NoError(t, err)
		assert.Equal(t, want, paid.Int64())
	}

	_, err := f.reg.Claim(ctx, code, p4)
	assert.ErrorIs(t, err, ErrNotAWinner)

	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.Pot.Int64(), "payouts never shrink the pot")
	assert.Equal(t, int64(0), f.vault.Held(asset.Native()).Int64())
	assert.ElementsMatch(t, ranking, info.Claimed)
}

func TestScenarioJudges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 3, j1, j2)
	f.join(t, code, 100, p1, p2, p3)
	require.NoError(t, f.reg.Lock(ctx, code, host))

	ranking := []common.Address{p2, p1}
	err := f.reg.Report(ctx, code, p1, ranking)
	assert.ErrorIs(t, err, ErrNotEligibleVoter)
	assert.ErrorIs(t, err, errkind.ErrAuthorization)

	require.NoError(t, f.reg.Report(ctx, code, j1, ranking))
	require.NoError(t, f.reg.Report(ctx, code, j2, []common.Address{p1, p2}))

	winners, err := f.reg.ConfirmedWinners(code)
	require.NoError(t, err)
	assert.Empty(t, winners, "different orders never aggregate")

	support, err := f.reg.Support(code, ranking)
	require.NoError(t, err)
	assert.Equal(t, 1, support)

	require.NoError(t, f.reg.Report(ctx, code, j2, ranking))
	winners, err = f.reg.ConfirmedWinners(code)
	require.NoError(t, err)
	assert.Equal(t, ranking, winners)

	// Judges are never paid.
	_, err = f.reg.Claim(ctx, code, j1)
	assert.ErrorIs(t, err, ErrNotAWinner)
	paid, err := f.reg.Claim(ctx, code, p2)
	require.NoError(t, err)
	assert.Equal(t, int64(300), paid.Int64())
}

func TestScenarioRemoveRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 4)
	f.join(t, code, 100, p1, p2)

	require.NoError(t, f.reg.Remove(ctx, code, host, p1))
	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Pot.Int64())
	assert.Equal(t, []common.Address{p2}, info.Roster.Players)
	assert.Equal(t, int64(10_000), f.vault.BalanceOf(asset.Native(), p1).Int64())

	// Self-removal is allowed; removing someone else is not.
	f.join(t, code, 100, p3)
	assert.ErrorIs(t, f.reg.Remove(ctx, code, p2, p3), ErrNotHost)
	require.NoError(t, f.reg.Remove(ctx, code, p3, p3))
	assert.ErrorIs(t, f.reg.Remove(ctx, code, host, p3), ErrNotAParticipant)

	require.NoError(t, f.reg.Lock(ctx, code, host))
	assert.ErrorIs(t, f.reg.Remove(ctx, code, host, p2), ErrGameLocked)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.Create(ctx, host, CreateRequest{BuyIn: big.NewInt(1), MaxPlayers: 1})
	assert.ErrorIs(t, err, ErrInvalidMaxPlayers)

	other := asset.Token(common.HexToAddress("0x00000000000000000000000000000000000000ff"))
	_, err = f.reg.Create(ctx, host, CreateRequest{BuyIn: big.NewInt(1), MaxPlayers: 2, Asset: other})
	assert.ErrorIs(t, err, ErrAssetNotAllowed)

	_, err = f.reg.Create(ctx, host, CreateRequest{BuyIn: big.NewInt(1), MaxPlayers: 2, Judges: []common.Address{{}}})
	assert.ErrorIs(t, err, ErrInvalidJudge)

	assert.Empty(t, f.reg.Codes(), "failed creates reserve nothing")
	assert.True(t, f.reg.IsAssetAllowed(usdc))
	assert.False(t, f.reg.IsAssetAllowed(other))
}

func TestCodeChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2)

	assert.ErrorIs(t, f.reg.Join(ctx, "bad", p1, big.NewInt(100)), ErrMalformedCode)
	assert.ErrorIs(t, f.reg.Join(ctx, "ZZZ-ZZZ", p1, big.NewInt(100)), ErrNoSuchGame)

	ok, err := f.reg.IsCodeAvailable(ctx, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2, j1)

	assert.ErrorIs(t, f.reg.Join(ctx, code, p1, big.NewInt(50)), ErrAmountMismatch)
	f.join(t, code, 100, p1)
	assert.ErrorIs(t, f.reg.Join(ctx, code, p1, big.NewInt(100)), ErrAlreadyJoined)

	// Judges join free and never take a seat.
	assert.ErrorIs(t, f.reg.Join(ctx, code, j1, big.NewInt(100)), ErrAmountMismatch)
	require.NoError(t, f.reg.Join(ctx, code, j1, nil))

	f.join(t, code, 100, p2)
	assert.ErrorIs(t, f.reg.Join(ctx, code, p3, big.NewInt(100)), ErrGameFull)

	require.NoError(t, f.reg.Lock(ctx, code, host))
	assert.ErrorIs(t, f.reg.Join(ctx, code, p3, big.NewInt(100)), ErrGameLocked)

	players, err := f.reg.Players(code)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{p1, p2}, players)
	judges, err := f.reg.Judges(code)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{j1}, judges)
}

func TestJoinTransferFailureLeavesGameUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 3)

	f.vault.SetFailureHook(func(direction string, _ asset.Ref, party common.Address, _ *big.Int) error {
		if direction == asset.DirectionPull && party == p1 {
			return errors.New("reverted")
		}
		return nil
	})

	err := f.reg.Join(ctx, code, p1, big.NewInt(100))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, errkind.ErrTransfer)

	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	assert.Empty(t, info.Roster.Players)
	assert.Equal(t, int64(0), info.Pot.Int64())
}

func TestTokenGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code, err := f.reg.Create(ctx, host, CreateRequest{BuyIn: big.NewInt(40), Asset: usdc, MaxPlayers: 2})
	require.NoError(t, err)

	assert.ErrorIs(t, f.reg.Join(ctx, code, p1, big.NewInt(40)), ErrAmountMismatch)
	require.NoError(t, f.reg.Join(ctx, code, p1, nil))
	require.NoError(t, f.reg.Join(ctx, code, p2, nil))
	assert.Equal(t, int64(80), f.vault.Held(usdc).Int64())
	assert.Equal(t, int64(0), f.vault.Held(asset.Native()).Int64())
}

func TestHostOnlyOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 3)

	assert.ErrorIs(t, f.reg.Lock(ctx, code, p1), ErrNotHost)
	assert.ErrorIs(t, f.reg.SetPrizeSplits(ctx, code, p1, []uint16{1000}), ErrNotHost)
	assert.ErrorIs(t, f.reg.SetJudges(ctx, code, p1, []common.Address{j1}), ErrNotHost)
	assert.ErrorIs(t, f.reg.SetPrizeSplits(ctx, code, host, []uint16{600, 300}), ErrInvalidSplitSum)

	require.NoError(t, f.reg.SetJudges(ctx, code, host, []common.Address{j1}))
	require.NoError(t, f.reg.Lock(ctx, code, host))
	assert.ErrorIs(t, f.reg.Lock(ctx, code, host), ErrAlreadyLocked)
	assert.ErrorIs(t, f.reg.SetPrizeSplits(ctx, code, host, []uint16{1000}), ErrGameLocked)
	assert.ErrorIs(t, f.reg.SetJudges(ctx, code, host, nil), ErrGameLocked)
}

func TestReportAndClaimOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 3)
	f.join(t, code, 100, p1, p2)

	assert.ErrorIs(t, f.reg.Report(ctx, code, p1, []common.Address{p1}), ErrNotLocked)
	require.NoError(t, f.reg.Lock(ctx, code, host))

	_, err := f.reg.Claim(ctx, code, p1)
	assert.ErrorIs(t, err, ErrNotConfirmed)

	assert.ErrorIs(t, f.reg.Report(ctx, code, p1, []common.Address{p3}), ErrInvalidWinnerList)
	assert.ErrorIs(t, f.reg.Report(ctx, code, p1, []common.Address{p1, p2, p1}), ErrInvalidWinnerList)

	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p2, p1}))
	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p2, p1}))
	assert.ErrorIs(t, f.reg.Report(ctx, code, p1, []common.Address{p1}), ErrAlreadyConfirmed)

	// Second place has no prize when the winner takes all.
	_, err = f.reg.Claim(ctx, code, p1)
	assert.ErrorIs(t, err, ErrNoPrizeForRank)
}

func TestAddToPotAfterLockUntilConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2)
	f.join(t, code, 100, p1, p2)
	require.NoError(t, f.reg.Lock(ctx, code, host))

	assert.ErrorIs(t, f.reg.AddToPot(ctx, code, host, big.NewInt(0), big.NewInt(0)), ErrInvalidAmount)
	require.NoError(t, f.reg.AddToPot(ctx, code, host, big.NewInt(50), big.NewInt(50)))

	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p2}))
	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p2}))
	assert.ErrorIs(t, f.reg.AddToPot(ctx, code, host, big.NewInt(50), big.NewInt(50)), ErrAlreadyConfirmed)

	paid, err := f.reg.Claim(ctx, code, p2)
	require.NoError(t, err)
	assert.Equal(t, int64(250), paid.Int64())
}

func TestClaimTransferFailureCanRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2)
	f.join(t, code, 100, p1, p2)
	require.NoError(t, f.reg.Lock(ctx, code, host))
	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p1}))
	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p1}))

	f.vault.SetFailureHook(func(string, asset.Ref, common.Address, *big.Int) error {
		return errors.New("recipient rejects value")
	})
	_, err := f.reg.Claim(ctx, code, p1)
	assert.ErrorIs(t, err, ErrTransferFailed)

	f.vault.SetFailureHook(nil)
	paid, err := f.reg.Claim(ctx, code, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), paid.Int64())
}

func TestObserverSeesEveryChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2)
	f.join(t, code, 100, p1, p2)
	require.NoError(t, f.reg.Lock(ctx, code, host))
	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p1}))
	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p1}))
	_, err := f.reg.Claim(ctx, code, p1)
	require.NoError(t, err)

	// Rejected calls are not observed.
	assert.Error(t, f.reg.Lock(ctx, code, host))

	assert.Equal(t, []string{
		model.EventCreated,
		model.EventBuyIn, model.EventBuyIn,
		model.EventLocked,
		model.EventReported,
		model.EventReported, model.EventConfirmed,
		model.EventPayout,
	}, f.rec.kinds())
	assert.Equal(t, "confirmed", f.rec.last.Status())
}

func TestRestoreFromJSON(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 3)
	f.join(t, code, 100, p1, p2, p3)
	require.NoError(t, f.reg.Lock(ctx, code, host))
	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p3}))

	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	raw, err := json.Marshal(info)
	require.NoError(t, err)

	var rec model.GameRecord
	require.NoError(t, json.Unmarshal(raw, &rec))

	restored := NewRegistry(codegen.New(codegen.NewMemoryStore()), f.allow, f.vault)
	require.NoError(t, restored.Restore(ctx, &rec))
	assert.Error(t, restored.Restore(ctx, &rec), "a code can only be restored once")

	// The vote cast before the restart still counts.
	require.NoError(t, restored.Report(ctx, code, p2, []common.Address{p3}))
	paid, err := restored.Claim(ctx, code, p3)
	require.NoError(t, err)
	assert.Equal(t, int64(300), paid.Int64())

	ok, err := restored.IsCodeAvailable(ctx, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestConcurrentJoinsRespectCapacity checks that racing joins never overfill
// a game and that the pot matches the seated players.
func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 10, 4)

	var joiners []common.Address
	for i := 0; i < 20; i++ {
		who := common.BigToAddress(big.NewInt(int64(1000 + i)))
		f.vault.Mint(asset.Native(), who, big.NewInt(10))
		joiners = append(joiners, who)
	}

	var g errgroup.Group
	for _, who := range joiners {
		who := who
		g.Go(func() error {
			err := f.reg.Join(ctx, code, who, big.NewInt(10))
			if err != nil && !errors.Is(err, ErrGameFull) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	info, err := f.reg.GameInfo(code)
	require.NoError(t, err)
	assert.Len(t, info.Roster.Players, 4)
	assert.Equal(t, int64(40), info.Pot.Int64())
	assert.Equal(t, int64(40), f.vault.Held(asset.Native()).Int64())
}

// TestConcurrentClaimsPayOnce races one winner's claims.
func TestConcurrentClaimsPayOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.create(t, 100, 2)
	f.join(t, code, 100, p1, p2)
	require.NoError(t, f.reg.Lock(ctx, code, host))
	require.NoError(t, f.reg.Report(ctx, code, p1, []common.Address{p1}))
	require.NoError(t, f.reg.Report(ctx, code, p2, []common.Address{p1}))

	var mu sync.Mutex
	successes := 0
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := f.reg.Claim(ctx, code, p1)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return nil
			}
			if errors.Is(err, ErrAlreadyClaimed) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, successes)
	assert.Equal(t, int64(10_100), f.vault.BalanceOf(asset.Native(), p1).Int64())
}

package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"wager-bot/internal/pkg/errkind"
)

// table is a fixed electorate: players vote unless judges are listed.
type table struct {
	players []common.Address
	judges  []common.Address
}

func (tb table) EligibleVoters() []common.Address {
	if len(tb.judges) > 0 {
		return tb.judges
	}
	return tb.players
}

func (tb table) IsEligibleVoter(id common.Address) bool {
	for _, v := range tb.EligibleVoters() {
		if v == id {
			return true
		}
	}
	return false
}

func (tb table) IsPlayer(id common.Address) bool {
	for _, p := range tb.players {
		if p == id {
			return true
		}
	}
	return false
}

func (tb table) PlayerCount() int { return len(tb.players) }

func addrs(from, to byte) []common.Address {
	out := make([]common.Address, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, common.BytesToAddress([]byte{i}))
	}
	return out
}

func TestHashReportOrderSensitive(t *testing.T) {
	a := addrs(1, 2)
	b := []common.Address{a[1], a[0]}
	assert.NotEqual(t, HashReport(a), HashReport(b))
	assert.Equal(t, HashReport(a), HashReport(addrs(1, 2)))
}

func TestQuorum(t *testing.T) {
	assert.Equal(t, 1, Quorum(1))
	assert.Equal(t, 2, Quorum(2))
	assert.Equal(t, 2, Quorum(3))
	assert.Equal(t, 3, Quorum(4))
	assert.Equal(t, 3, Quorum(5))
}

func TestReportValidation(t *testing.T) {
	players := addrs(1, 3)
	tb := table{players: players}
	tally := NewTally()
	outsider := common.BytesToAddress([]byte{99})

	_, err := tally.Report(outsider, players[:1], tb)
	assert.ErrorIs(t, err, ErrNotEligibleVoter)
	assert.ErrorIs(t, err, errkind.ErrAuthorization)

	for _, bad := range [][]common.Address{
		nil,
		{outsider},
		{players[0], players[0]},
		append(append([]common.Address{}, players...), outsider),
	} {
		_, err := tally.Report(players[0], bad, tb)
		assert.ErrorIs(t, err, ErrInvalidWinnerList)
	}
	assert.Equal(t, 0, tally.TotalSupport())
}

func TestVoteReplacement(t *testing.T) {
	players := addrs(1, 4)
	tb := table{players: players}
	tally := NewTally()

	listA := []common.Address{players[0]}
	listB := []common.Address{players[1]}

	done, err := tally.Report(players[0], listA, tb)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, tally.Support(HashReport(listA)))

	done, err = tally.Report(players[0], listB, tb)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, tally.Support(HashReport(listA)))
	assert.Equal(t, 1, tally.Support(HashReport(listB)))
	assert.Equal(t, 1, tally.TotalSupport())

	// Re-reporting the same list does not double count.
	_, err = tally.Report(players[0], listB, tb)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Support(HashReport(listB)))
}

func TestJudgesOnlyVote(t *testing.T) {
	players := addrs(1, 3)
	judges := addrs(10, 12)
	tb := table{players: players, judges: judges}
	tally := NewTally()
	winners := []common.Address{players[2], players[0]}

	_, err := tally.Report(players[0], winners, tb)
	assert.ErrorIs(t, err, ErrNotEligibleVoter)

	done, err := tally.Report(judges[0], winners, tb)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = tally.Report(judges[1], winners, tb)
	require.NoError(t, err)
	assert.True(t, done)

	assert.Equal(t, Confirmed{Winners: winners}, tally.Outcome())

	_, err = tally.Report(judges[2], winners, tb)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestStateRoundTrip(t *testing.T) {
	players := addrs(1, 3)
	tb := table{players: players}
	tally := NewTally()
	_, _ = tally.Report(players[0], players[:1], tb)

	back := Restore(tally.State())
	assert.Equal(t, tally.State(), back.State())
	assert.Equal(t, Open{}, back.Outcome())

	_, err := back.Report(players[1], players[:1], tb)
	require.NoError(t, err)
	assert.Equal(t, players[:1], back.Winners())
}

// TestQuorumCorrectnessProperty checks that a list is confirmed exactly when
// its support first reaches floor(n/2)+1 and that support is always the
// number of voters whose latest report is that list.
func TestQuorumCorrectnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 9).Draw(t, "players")
		players := addrs(1, byte(n))
		tb := table{players: players}
		tally := NewTally()

		candidates := [][]common.Address{players[:1]}
		if n > 1 {
			candidates = append(candidates, []common.Address{players[1], players[0]}, players[:2])
		}

		latest := map[common.Address]int{}
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			voter := players[rapid.IntRange(0, n-1).Draw(t, "voter")]
			pick := rapid.IntRange(0, len(candidates)-1).Draw(t, "list")

			done, err := tally.Report(voter, candidates[pick], tb)
			if _, confirmed := tally.Outcome().(Confirmed); confirmed && !done {
				if err != ErrAlreadyConfirmed {
					t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			latest[voter] = pick

			counts := make([]int, len(candidates))
			for _, c := range latest {
				counts[c]++
			}
			for c, list := range candidates {
				if got := tally.Support(HashReport(list)); got != counts[c] {
					t.Fatalf("support for list %d: got %d want %d", c, got, counts[c])
				}
			}
			if done != (counts[pick] >= Quorum(n)) {
				t.Fatalf("confirmation %v with support %d of quorum %d", done, counts[pick], Quorum(n))
			}
			if done {
				w := tally.Winners()
				if HashReport(w) != HashReport(candidates[pick]) {
					t.Fatalf("confirmed the wrong list")
				}
			}
		}
	})
}

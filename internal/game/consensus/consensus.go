// Package consensus tallies winner reports. Each eligible voter backs one
// ordered winner list at a time; the first list to reach a strict majority
// of the current electorate is confirmed, permanently.
package consensus

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"wager-bot/internal/pkg/errkind"
)

var (
	ErrAlreadyConfirmed  = errkind.New(errkind.ErrStateConflict, "winners already confirmed")
	ErrNotEligibleVoter  = errkind.New(errkind.ErrAuthorization, "not an eligible voter")
	ErrInvalidWinnerList = errkind.New(errkind.ErrValidation, "invalid winner list")
)

// Outcome is either Open or Confirmed.
type Outcome interface {
	isOutcome()
}

// Open means no list has reached quorum yet.
type Open struct{}

// Confirmed carries the agreed ranking, best first.
type Confirmed struct {
	Winners []common.Address
}

func (Open) isOutcome()      {}
func (Confirmed) isOutcome() {}

// Electorate answers membership questions for one report.
type Electorate interface {
	EligibleVoters() []common.Address
	IsEligibleVoter(id common.Address) bool
	IsPlayer(id common.Address) bool
	PlayerCount() int
}

// HashReport fingerprints an ordered winner list. Reordering changes the hash.
func HashReport(winners []common.Address) common.Hash {
	packed := make([]byte, 0, len(winners)*common.AddressLength)
	for _, w := range winners {
		packed = append(packed, w.Bytes()...)
	}
	return crypto.Keccak256Hash(packed)
}

// Quorum is the strict majority of n voters.
func Quorum(n int) int {
	return n/2 + 1
}

// Tally holds the votes of one game. Not safe for concurrent use.
type Tally struct {
	lastReport map[common.Address]common.Hash
	support    map[common.Hash]int
	outcome    Outcome
}

// NewTally creates an open tally.
func NewTally() *Tally {
	return &Tally{
		lastReport: make(map[common.Address]common.Hash),
		support:    make(map[common.Hash]int),
		outcome:    Open{},
	}
}

// State is the serialisable form of a Tally.
type State struct {
	LastReport map[common.Address]common.Hash `json:"last_report"`
	Support    map[common.Hash]int            `json:"support"`
	Winners    []common.Address               `json:"winners,omitempty"`
	Confirmed  bool                           `json:"confirmed"`
}

// Restore rebuilds a tally from its State.
func Restore(s State) *Tally {
	t := NewTally()
	for voter, h := range s.LastReport {
		t.lastReport[voter] = h
	}
	for h, n := range s.Support {
		t.support[h] = n
	}
	if s.Confirmed {
		t.outcome = Confirmed{Winners: append([]common.Address(nil), s.Winners...)}
	}
	return t
}

// State snapshots the tally.
func (t *Tally) State() State {
	s := State{
		LastReport: make(map[common.Address]common.Hash, len(t.lastReport)),
		Support:    make(map[common.Hash]int, len(t.support)),
	}
	for voter, h := range t.lastReport {
		s.LastReport[voter] = h
	}
	for h, n := range t.support {
		if n > 0 {
			s.Support[h] = n
		}
	}
	if c, ok := t.outcome.(Confirmed); ok {
		s.Confirmed = true
		s.Winners = append([]common.Address(nil), c.Winners...)
	}
	return s
}

// Report records voter's backing of winners, replacing any earlier report by
// the same voter. It returns true when this report confirmed the outcome.
func (t *Tally) Report(voter common.Address, winners []common.Address, e Electorate) (bool, error) {
	if _, done := t.outcome.(Confirmed); done {
		return false, ErrAlreadyConfirmed
	}
	if !e.IsEligibleVoter(voter) {
		return false, ErrNotEligibleVoter
	}
	if err := validateWinners(winners, e); err != nil {
		return false, err
	}

	h := HashReport(winners)
	if prev, ok := t.lastReport[voter]; ok && t.support[prev] > 0 {
		t.support[prev]--
	}
	t.lastReport[voter] = h
	t.support[h]++

	if t.support[h] >= Quorum(len(e.EligibleVoters())) {
		t.outcome = Confirmed{Winners: append([]common.Address(nil), winners...)}
		return true, nil
	}
	return false, nil
}

// Outcome returns the current outcome.
func (t *Tally) Outcome() Outcome {
	if c, ok := t.outcome.(Confirmed); ok {
		return Confirmed{Winners: append([]common.Address(nil), c.Winners...)}
	}
	return Open{}
}

// Winners returns the confirmed ranking, or nil while open.
func (t *Tally) Winners() []common.Address {
	if c, ok := t.outcome.(Confirmed); ok {
		return append([]common.Address(nil), c.Winners...)
	}
	return nil
}

// Support returns how many voters currently back h.
func (t *Tally) Support(h common.Hash) int { return t.support[h] }

// LastReport returns the hash voter currently backs.
func (t *Tally) LastReport(voter common.Address) (common.Hash, bool) {
	h, ok := t.lastReport[voter]
	return h, ok
}

// TotalSupport sums support over all lists. It never exceeds the number of
// voters who have reported.
func (t *Tally) TotalSupport() int {
	total := 0
	for _, n := range t.support {
		total += n
	}
	return total
}

func validateWinners(winners []common.Address, e Electorate) error {
	if len(winners) == 0 || len(winners) > e.PlayerCount() {
		return ErrInvalidWinnerList
	}
	seen := make(map[common.Address]struct{}, len(winners))
	for _, w := range winners {
		if !e.IsPlayer(w) {
			return ErrInvalidWinnerList
		}
		if _, dup := seen[w]; dup {
			return ErrInvalidWinnerList
		}
		seen[w] = struct{}{}
	}
	return nil
}

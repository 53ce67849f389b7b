// Package roster tracks who is in a game: paying players in join order,
// judges, and the one-way lock that freezes membership.
package roster

import (
	"github.com/ethereum/go-ethereum/common"

	"wager-bot/internal/pkg/errkind"
)

var (
	ErrAlreadyJoined    = errkind.New(errkind.ErrStateConflict, "already joined")
	ErrGameFull         = errkind.New(errkind.ErrStateConflict, "game is full")
	ErrGameLocked       = errkind.New(errkind.ErrStateConflict, "game is locked")
	ErrAlreadyLocked    = errkind.New(errkind.ErrStateConflict, "game already locked")
	ErrNotAParticipant  = errkind.New(errkind.ErrValidation, "not a participant")
	ErrInvalidJudge     = errkind.New(errkind.ErrValidation, "invalid judge")
	ErrInvalidMaxPlayer = errkind.New(errkind.ErrValidation, "max players must be at least 2")
)

// MinPlayers is the smallest allowed maxPlayers.
const MinPlayers = 2

// Roster is the membership of one game. Not safe for concurrent use.
type Roster struct {
	maxPlayers int
	players    []common.Address
	judges     []common.Address
	judgeSet   map[common.Address]struct{}
	joined     map[common.Address]struct{}
	locked     bool
}

// New creates an open roster.
func New(maxPlayers int, judges []common.Address) (*Roster, error) {
	if maxPlayers < MinPlayers {
		return nil, ErrInvalidMaxPlayer
	}
	r := &Roster{
		maxPlayers: maxPlayers,
		judgeSet:   make(map[common.Address]struct{}),
		joined:     make(map[common.Address]struct{}),
	}
	if err := r.SetJudges(judges); err != nil {
		return nil, err
	}
	return r, nil
}

// State is the serialisable form of a Roster.
type State struct {
	MaxPlayers int              `json:"max_players"`
	Players    []common.Address `json:"players"`
	Judges     []common.Address `json:"judges"`
	Joined     []common.Address `json:"joined"`
	Locked     bool             `json:"locked"`
}

// Restore rebuilds a roster from its State.
func Restore(s State) *Roster {
	r := &Roster{
		maxPlayers: s.MaxPlayers,
		players:    append([]common.Address(nil), s.Players...),
		judges:     append([]common.Address(nil), s.Judges...),
		judgeSet:   make(map[common.Address]struct{}, len(s.Judges)),
		joined:     make(map[common.Address]struct{}, len(s.Joined)),
		locked:     s.Locked,
	}
	for _, j := range s.Judges {
		r.judgeSet[j] = struct{}{}
	}
	for _, j := range s.Joined {
		r.joined[j] = struct{}{}
	}
	return r
}

// State snapshots the roster.
func (r *Roster) State() State {
	joined := append(make([]common.Address, 0, len(r.joined)), r.players...)
	for _, j := range r.judges {
		if _, ok := r.joined[j]; ok {
			joined = append(joined, j)
		}
	}
	return State{
		MaxPlayers: r.maxPlayers,
		Players:    r.Players(),
		Judges:     r.Judges(),
		Joined:     joined,
		Locked:     r.locked,
	}
}

// SetJudges replaces the judge set. The null identity and current players
// are rejected; duplicates collapse.
func (r *Roster) SetJudges(judges []common.Address) error {
	if r.locked {
		return ErrGameLocked
	}
	set := make(map[common.Address]struct{}, len(judges))
	ordered := make([]common.Address, 0, len(judges))
	for _, j := range judges {
		if j == (common.Address{}) || r.IsPlayer(j) {
			return ErrInvalidJudge
		}
		if _, dup := set[j]; dup {
			continue
		}
		set[j] = struct{}{}
		ordered = append(ordered, j)
	}

	// Judges dropped from the list lose their acknowledgement.
	for j := range r.judgeSet {
		if _, kept := set[j]; !kept {
			delete(r.joined, j)
		}
	}
	r.judges = ordered
	r.judgeSet = set
	return nil
}

// Join admits id. Judges are acknowledged without taking a player seat; the
// returned bool is true when id became a paying player.
func (r *Roster) Join(id common.Address) (bool, error) {
	if r.locked {
		return false, ErrGameLocked
	}
	if _, ok := r.joined[id]; ok {
		return false, ErrAlreadyJoined
	}
	if r.IsJudge(id) {
		r.joined[id] = struct{}{}
		return false, nil
	}
	if len(r.players) >= r.maxPlayers {
		return false, ErrGameFull
	}
	r.players = append(r.players, id)
	r.joined[id] = struct{}{}
	return true, nil
}

// CanJoinAsPlayer runs Join's checks without mutating. It reports whether id
// would take a player seat.
func (r *Roster) CanJoinAsPlayer(id common.Address) (bool, error) {
	if r.locked {
		return false, ErrGameLocked
	}
	if _, ok := r.joined[id]; ok {
		return false, ErrAlreadyJoined
	}
	if r.IsJudge(id) {
		return false, nil
	}
	if len(r.players) >= r.maxPlayers {
		return false, ErrGameFull
	}
	return true, nil
}

// Remove drops a player by swapping the last player into its slot.
func (r *Roster) Remove(id common.Address) error {
	if r.locked {
		return ErrGameLocked
	}
	idx := -1
	for i, p := range r.players {
		if p == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotAParticipant
	}
	last := len(r.players) - 1
	r.players[idx] = r.players[last]
	r.players = r.players[:last]
	delete(r.joined, id)
	return nil
}

// Lock freezes membership for good.
func (r *Roster) Lock() error {
	if r.locked {
		return ErrAlreadyLocked
	}
	r.locked = true
	return nil
}

// EligibleVoters is the judges if there are any, otherwise the players.
func (r *Roster) EligibleVoters() []common.Address {
	if len(r.judges) > 0 {
		return r.Judges()
	}
	return r.Players()
}

// IsEligibleVoter reports membership in EligibleVoters.
func (r *Roster) IsEligibleVoter(id common.Address) bool {
	if len(r.judges) > 0 {
		return r.IsJudge(id)
	}
	return r.IsPlayer(id)
}

// Players returns a copy of the player list.
func (r *Roster) Players() []common.Address {
	return append([]common.Address{}, r.players...)
}

// Judges returns a copy of the judge list.
func (r *Roster) Judges() []common.Address {
	return append([]common.Address{}, r.judges...)
}

// IsPlayer reports whether id holds a player seat.
func (r *Roster) IsPlayer(id common.Address) bool {
	if _, ok := r.joined[id]; !ok {
		return false
	}
	return !r.IsJudge(id)
}

// IsJudge reports whether id is a listed judge.
func (r *Roster) IsJudge(id common.Address) bool {
	_, ok := r.judgeSet[id]
	return ok
}

// HasJoined reports whether id joined as a player or an acknowledged judge.
func (r *Roster) HasJoined(id common.Address) bool {
	_, ok := r.joined[id]
	return ok
}

// PlayerCount returns the number of players.
func (r *Roster) PlayerCount() int { return len(r.players) }

// MaxPlayers returns the seat limit.
func (r *Roster) MaxPlayers() int { return r.maxPlayers }

// Locked reports whether membership is frozen.
func (r *Roster) Locked() bool { return r.locked }

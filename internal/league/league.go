// Package league holds league membership and the pairing generator that
// splits a full league into 1-versus-1 drafting pairs.
package league

import (
	crand "crypto/rand"
	"errors"
	"math/rand/v2"
)

// DefaultCapacity is the number of members a league needs before pairing.
const DefaultCapacity = 12

var (
	ErrInsufficientMembers = errors.New("insufficient members")
	ErrTooManyMembers      = errors.New("too many members")
	ErrAlreadyPaired       = errors.New("league already paired")
	ErrOddCapacity         = errors.New("league capacity must be even")
)

// Member is a confirmed league member. Immutable once created.
type Member struct {
	UserID      string
	DisplayName string
	Email       string
}

// Pair is a 2-member drafting unit. PoolIndex selects its player pool.
type Pair struct {
	ID        string
	LeagueID  string
	PoolIndex int
	Members   [2]Member
	Drafted   bool
}

func (p Pair) MemberIDs() [2]string {
	return [2]string{p.Members[0].UserID, p.Members[1].UserID}
}

type Options struct {
	Capacity      int
	AlreadyPaired bool
	// Rand drives the shuffle; a nil Rand is seeded from crypto/rand.
	Rand *rand.Rand
}

// Generate shuffles members uniformly and groups them consecutively into
// pairs. Pool indices follow the position of each pair in the shuffle.
// Pair ids are left for the caller to assign.
func Generate(members []Member, opts Options) ([]Pair, error) {
	if opts.AlreadyPaired {
		return nil, ErrAlreadyPaired
	}

	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity%2 != 0 {
		return nil, ErrOddCapacity
	}
	if len(members) < capacity {
		return nil, ErrInsufficientMembers
	}
	if len(members) > capacity {
		return nil, ErrTooManyMembers
	}

	r := opts.Rand
	if r == nil {
		r = newRand()
	}

	shuffled := make([]Member, len(members))
	copy(shuffled, members)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	pairs := make([]Pair, 0, capacity/2)
	for i := 0; i < capacity/2; i++ {
		pairs = append(pairs, Pair{
			PoolIndex: i,
			Members:   [2]Member{shuffled[2*i], shuffled[2*i+1]},
		})
	}
	return pairs, nil
}

func newRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(seed))
}


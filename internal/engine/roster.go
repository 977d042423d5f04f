package engine

type Slot string

const (
	SlotQB    Slot = "QB"
	SlotRB    Slot = "RB"
	SlotWR    Slot = "WR"
	SlotTE    Slot = "TE"
	SlotFlex  Slot = "FLEX"
	SlotK     Slot = "K"
	SlotDEF   Slot = "DEF"
	SlotBench Slot = "BENCH"
)

// DefaultRosterSpots is the league roster: 15 slots per drafter.
var DefaultRosterSpots = map[Slot]int{
	SlotQB:    1,
	SlotRB:    2,
	SlotWR:    2,
	SlotTE:    1,
	SlotFlex:  1,
	SlotK:     1,
	SlotDEF:   1,
	SlotBench: 6,
}

var flexEligible = map[Position]bool{PosRB: true, PosWR: true, PosTE: true}

// Roster maps each slot to the player ids placed in it, in pick order.
type Roster map[Slot][]string

func (r Rules) spots() map[Slot]int {
	if r.Spots != nil {
		return r.Spots
	}
	return DefaultRosterSpots
}

func (r Rules) Capacity() int {
	total := 0
	for _, n := range r.spots() {
		total += n
	}
	return total
}

// Place returns the slot a player of the given position would occupy:
// the dedicated slot first, then FLEX when eligible, then BENCH.
func (r Roster) Place(rules Rules, pos Position) (Slot, bool) {
	spots := rules.spots()
	candidates := []Slot{Slot(pos)}
	if flexEligible[pos] {
		candidates = append(candidates, SlotFlex)
	}
	candidates = append(candidates, SlotBench)

	for _, slot := range candidates {
		if len(r[slot]) < spots[slot] {
			return slot, true
		}
	}
	return "", false
}

func (r Roster) Size() int {
	n := 0
	for _, ids := range r {
		n += len(ids)
	}
	return n
}

func (r Roster) Full(rules Rules) bool {
	return r.Size() >= rules.Capacity()
}

// BuildRoster replays a drafter's picks into slots. Picks of players missing
// from the pool are ignored.
func BuildRoster(rules Rules, picks []Pick, pool map[string]Player) Roster {
	r := Roster{}
	for _, p := range picks {
		player, ok := pool[p.PlayerID]
		if !ok {
			continue
		}
		slot, ok := r.Place(rules, player.Position)
		if !ok {
			continue
		}
		r[slot] = append(r[slot], player.ID)
	}
	return r
}

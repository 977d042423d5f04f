package engine

// Validate decides whether drafterID may pick playerID in s. It has no side
// effects. Checks run in a fixed order so the reported reason is stable.
func Validate(s State, drafterID, playerID string) error {
	if s.Draft.Status == StatusCompleted {
		return ErrDraftNotActive
	}
	if drafterID == "" || drafterID != s.Draft.CurrentPickerID {
		return ErrNotYourTurn
	}

	player, ok := s.Pool[playerID]
	if !ok || player.PoolAssignment != s.Draft.PoolIndex || s.Picked(playerID) {
		return ErrPlayerUnavailable
	}

	if _, ok := s.Roster(drafterID).Place(s.Rules, player.Position); !ok {
		return ErrRosterFull
	}
	return nil
}

package types

// MenuRef is one entry of the last menu shown to a session, retained so a
// follow-up like "the second one" can be resolved by position.
type MenuRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// MenuRefs is stored as a jsonb column on the conversation state row.
type MenuRefs []MenuRef

// ByPosition returns the 1-based entry, or false when out of range.
func (m MenuRefs) ByPosition(position int) (MenuRef, bool) {
	for _, ref := range m {
		if ref.Position == position {
			return ref, true
		}
	}
	return MenuRef{}, false
}

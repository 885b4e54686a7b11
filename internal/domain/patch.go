package domain

// UserPatch carries optional profile updates. Only non-nil fields are applied,
// replacing the runtime method-probing the previous implementation relied on.
type UserPatch struct {
	Name  *string
	Email *string
}

func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil
}

package model

// State is the lifecycle position of an account: verification x deletion.
type State string

const (
	StateUnverifiedActive  State = "unverified"
	StateVerifiedActive    State = "verified"
	StateUnverifiedDeleted State = "unverified_deleted"
	StateVerifiedDeleted   State = "verified_deleted"
)

// StateOf derives the lifecycle state from the account fields.
func StateOf(a *Account) State {
	switch {
	case a.Verified && a.Trashed():
		return StateVerifiedDeleted
	case a.Verified:
		return StateVerifiedActive
	case a.Trashed():
		return StateUnverifiedDeleted
	default:
		return StateUnverifiedActive
	}
}

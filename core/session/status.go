package session

// Status is the lifecycle stage of a session.
type Status uint32

const (
	// Unchanged is the initial state: nothing was mutated since creation or load.
	Unchanged Status = iota
	// Changed means at least one mutating call was applied.
	Changed
	// Renewed means the session identity was rotated.
	Renewed
	// Purged means the session was purged or destroyed. Mutations are dropped.
	Purged
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Renewed:
		return "renewed"
	case Purged:
		return "purged"
	default:
		return "unknown"
	}
}

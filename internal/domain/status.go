package domain

type StoreStatus string

const (
	StatusIdle      StoreStatus = "idle"
	StatusLoading   StoreStatus = "loading"
	StatusSucceeded StoreStatus = "succeeded"
	StatusFailed    StoreStatus = "failed"
)

// IsTerminal reports whether an operation has resolved.
func (s StoreStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// String representation (for logging)
func (s StoreStatus) String() string {
	return string(s)
}

package checkout

type IDGenerator interface {
	NewID() string
}

// Principal is the authenticated caller, supplied by the session layer.
type Principal struct {
	UserID string
	Admin  bool
}

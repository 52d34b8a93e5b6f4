package connectivity

//go:generate go run go.uber.org/mock/mockgen -source=connectivity.go -destination=mocks/mock.go

// Monitor reports online/offline transitions. The engine consumes the
// stream; it never polls.
type Monitor interface {
	// Transitions emits true when connectivity comes up and false when it
	// goes down. Only state changes are emitted. The channel closes when
	// the monitor stops.
	Transitions() <-chan bool

	Close()
}

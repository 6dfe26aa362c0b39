package event

// Event is one unit of work executed by the engine's consumer goroutine.
type Event interface {
	Handle() error
}

// Func adapts a plain function to an Event.
type Func func() error

func (f Func) Handle() error { return f() }

// Named is an Event carrying a label used in logs and fault reports.
type Named struct {
	Name string
	Fn   func() error
}

func (n Named) Handle() error { return n.Fn() }

func (n Named) String() string { return n.Name }

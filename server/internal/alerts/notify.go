package alerts

// Notifier receives every alert right after it has been appended to the
// ledger. Implementations must not block; slow work belongs on a queue.
type Notifier interface {
	Notify(a Alert)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(Alert)

func (f NotifierFunc) Notify(a Alert) { f(a) }

// Fanout forwards each alert to every notifier in order. Nil entries are skipped.
type Fanout []Notifier

func (f Fanout) Notify(a Alert) {
	for _, n := range f {
		if n != nil {
			n.Notify(a)
		}
	}
}

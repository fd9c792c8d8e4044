package report

// Message is one composed notification, ready for delivery. Body carries
// the full message text, headers included; To and CC are repeated outside
// the body for transports that address envelopes separately.
type Message struct {
	To   string
	CC   []string
	Body string
}

// Notifier delivers composed messages
type Notifier interface {
	Send(m *Message) error
}

// Noop swallows messages. Used when delivery is disabled.
type Noop struct{}

func (Noop) Send(*Message) error { return nil }

// Multi fans a message out to several notifiers, stopping at the first
// failure
type Multi struct {
	Notifiers []Notifier
}

func (m *Multi) Send(msg *Message) error {
	for _, n := range m.Notifiers {
		if err := n.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

package feed

// Subscription wraps a broker client behind the device engine's view of the
// change feed: a receive channel plus a teardown call.
type Subscription struct {
	broker *Broker
	client *Client
}

func (b *Broker) NewSubscription(sessionID string) *Subscription {
	return &Subscription{
		broker: b,
		client: b.Subscribe(sessionID),
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.client.Events
}

func (s *Subscription) Close() {
	s.broker.Unsubscribe(s.client)
}

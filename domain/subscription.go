package domain

// Subscription is a typed feed bound to one venue topic.
type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}

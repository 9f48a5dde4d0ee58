package hotel

import "fmt"

// EventsExchange returns the domain's topic exchange, e.g.
// "reservations.events".
func EventsExchange(domain string) string {
	return domain + ".events"
}

// DeadLetterExchange returns the domain's dead-letter exchange, e.g.
// "reservations.events.dlx".
func DeadLetterExchange(domain string) string {
	return EventsExchange(domain) + ".dlx"
}

// WorkQueue returns a domain work queue name, e.g.
// "reservations.booking.queue".
func WorkQueue(domain, purpose string) string {
	return fmt.Sprintf("%s.%s.queue", domain, purpose)
}

// DeadLetterQueue returns the dead-letter queue paired with a source
// queue, e.g. "reservations.booking.queue.dlq".
func DeadLetterQueue(sourceQueue string) string {
	return sourceQueue + ".dlq"
}

// DelayedQueue returns the domain's delayed-holding queue, e.g.
// "notifications.delayed". The queue has no consumer; expired messages
// dead-letter back into the domain's live exchange.
func DelayedQueue(domain string) string {
	return domain + ".delayed"
}

// RPCQueue returns the domain's well-known request queue, e.g.
// "reservations.service.rpc".
func RPCQueue(domain string) string {
	return domain + ".service.rpc"
}

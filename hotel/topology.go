package hotel

import (
	"github.com/fawazv/hotelmq/internal/rabbitmq"
	"github.com/fawazv/hotelmq/messaging"
)

// QueueBinding describes one work queue of a domain: its purpose and the
// routing patterns it subscribes to. Patterns bind on the queue's own
// domain events exchange unless SourceDomain names another domain, which
// subscribes the queue to that domain's exchange instead (housekeeping
// listening for reservation.checkedOut, say). The same purpose may appear
// in several bindings; the queue is declared once.
type QueueBinding struct {
	Purpose      string
	Patterns     []string
	SourceDomain string
}

// DomainTopology builds the standard broker layout for one domain:
//
//   - a durable topic exchange <domain>.events
//   - a durable topic dead-letter exchange <domain>.events.dlx
//   - per binding, a durable work queue <domain>.<purpose>.queue bound to
//     the events exchange, dead-lettering into the dlx under the queue's
//     own name
//   - per work queue, a durable <queue>.dlq bound to the dlx under the
//     queue's name, so each queue's failures stay separable
//
// A binding with a SourceDomain additionally declares that domain's
// events exchange and binds the queue to it; declare-if-absent semantics
// make the duplicate declaration with the owning domain harmless.
//
// Declaring the result twice is a no-op; declaring it against a broker
// holding an incompatible layout fails fatally at declaration time.
func DomainTopology(domain string, bindings ...QueueBinding) rabbitmq.Topology {
	events := EventsExchange(domain)
	dlx := DeadLetterExchange(domain)

	t := rabbitmq.Topology{
		Exchanges: []rabbitmq.ExchangeSpec{
			{Name: events, Kind: rabbitmq.ExchangeTopic, Durable: true},
			{Name: dlx, Kind: rabbitmq.ExchangeTopic, Durable: true},
		},
	}

	declaredExchanges := map[string]bool{events: true, dlx: true}
	declaredQueues := map[string]bool{}

	for _, b := range bindings {
		queue := WorkQueue(domain, b.Purpose)
		dlq := DeadLetterQueue(queue)

		if !declaredQueues[queue] {
			declaredQueues[queue] = true
			t.Queues = append(t.Queues,
				rabbitmq.QueueSpec{
					Name:                 queue,
					Durable:              true,
					DeadLetterExchange:   dlx,
					DeadLetterRoutingKey: queue,
				},
				rabbitmq.QueueSpec{
					Name:    dlq,
					Durable: true,
				},
			)

			t.Bindings = append(t.Bindings, rabbitmq.BindingSpec{
				Queue:      dlq,
				Exchange:   dlx,
				RoutingKey: queue,
			})
		}

		source := events
		if b.SourceDomain != "" && b.SourceDomain != domain {
			source = EventsExchange(b.SourceDomain)
			if !declaredExchanges[source] {
				declaredExchanges[source] = true
				t.Exchanges = append(t.Exchanges, rabbitmq.ExchangeSpec{
					Name: source, Kind: rabbitmq.ExchangeTopic, Durable: true,
				})
			}
		}

		for _, pattern := range b.Patterns {
			t.Bindings = append(t.Bindings, rabbitmq.BindingSpec{
				Queue:      queue,
				Exchange:   source,
				RoutingKey: pattern,
			})
		}
	}

	return t
}

// RPCTopology builds the domain's well-known request queue, wired to the
// domain dlx like any work queue: a request the server cannot answer
// (malformed, no reply target, reply publish failed) is nacked and must
// land in a dead-letter queue, not be discarded by the broker. Reply
// queues are ephemeral and declared by each client, never here.
func RPCTopology(domain string) rabbitmq.Topology {
	dlx := DeadLetterExchange(domain)
	queue := RPCQueue(domain)
	dlq := DeadLetterQueue(queue)

	return rabbitmq.Topology{
		Exchanges: []rabbitmq.ExchangeSpec{
			{Name: dlx, Kind: rabbitmq.ExchangeTopic, Durable: true},
		},
		Queues: []rabbitmq.QueueSpec{
			{
				Name:                 queue,
				Durable:              true,
				DeadLetterExchange:   dlx,
				DeadLetterRoutingKey: queue,
			},
			{Name: dlq, Durable: true},
		},
		Bindings: []rabbitmq.BindingSpec{
			{Queue: dlq, Exchange: dlx, RoutingKey: queue},
		},
	}
}

// DelayedConfig builds the scheduler configuration for a domain: expired
// messages leave <domain>.delayed and re-enter the domain's events
// exchange under targetRoutingKey.
func DelayedConfig(domain, targetRoutingKey string) messaging.SchedulerConfig {
	return messaging.SchedulerConfig{
		HoldingQueue:     DelayedQueue(domain),
		TargetExchange:   EventsExchange(domain),
		TargetRoutingKey: targetRoutingKey,
	}
}

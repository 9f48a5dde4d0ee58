package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange kinds supported by the platform.
const (
	ExchangeTopic  = "topic"
	ExchangeDirect = "direct"
	ExchangeFanout = "fanout"
)

// ExchangeSpec defines an exchange to be declared.
type ExchangeSpec struct {
	Name    string
	Kind    string
	Durable bool
}

// QueueSpec defines a queue to be declared. DeadLetterExchange and
// DeadLetterRoutingKey configure where the broker reroutes messages that
// are negatively acknowledged or expire; MessageTTL sets a queue-level
// expiration used by delayed-delivery holding queues.
type QueueSpec struct {
	Name                 string
	Durable              bool
	AutoDelete           bool
	Exclusive            bool
	DeadLetterExchange   string
	DeadLetterRoutingKey string
	MessageTTL           time.Duration
	Arguments            amqp.Table
}

// BindingSpec binds a queue to an exchange with a routing pattern.
type BindingSpec struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Topology is the complete declared broker state of one service:
// exchanges, queues, and bindings. Declaring the same topology twice is a
// no-op because every declaration uses declare-if-absent semantics.
type Topology struct {
	Exchanges []ExchangeSpec
	Queues    []QueueSpec
	Bindings  []BindingSpec
}

// Merge combines two topologies into one.
func (t Topology) Merge(other Topology) Topology {
	return Topology{
		Exchanges: append(append([]ExchangeSpec{}, t.Exchanges...), other.Exchanges...),
		Queues:    append(append([]QueueSpec{}, t.Queues...), other.Queues...),
		Bindings:  append(append([]BindingSpec{}, t.Bindings...), other.Bindings...),
	}
}

// Validate checks the topology for structural mistakes that the broker
// would only report at declaration time.
func (t Topology) Validate() error {
	exchanges := make(map[string]bool, len(t.Exchanges))
	for _, e := range t.Exchanges {
		if e.Name == "" {
			return fmt.Errorf("%w: exchange with empty name", ErrInvalidTopology)
		}
		switch e.Kind {
		case ExchangeTopic, ExchangeDirect, ExchangeFanout:
		default:
			return fmt.Errorf("%w: exchange %q has unknown kind %q", ErrInvalidTopology, e.Name, e.Kind)
		}
		exchanges[e.Name] = true
	}

	queues := make(map[string]bool, len(t.Queues))
	for _, q := range t.Queues {
		if q.Name == "" {
			return fmt.Errorf("%w: queue with empty name", ErrInvalidTopology)
		}
		queues[q.Name] = true
	}

	for _, b := range t.Bindings {
		if !queues[b.Queue] {
			return fmt.Errorf("%w: binding references undeclared queue %q", ErrInvalidTopology, b.Queue)
		}
		if !exchanges[b.Exchange] {
			return fmt.Errorf("%w: binding references undeclared exchange %q", ErrInvalidTopology, b.Exchange)
		}
	}

	return nil
}

// Declare declares the topology on the given channel. Order is exchanges,
// then queues, then bindings: a queue's dead-letter target must already
// exist as an exchange, and a binding requires both ends.
//
// A declaration conflict (same name, incompatible attributes) closes the
// channel and is returned as a TopologyError; it is fatal and must not be
// retried.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := t.Validate(); err != nil {
		return err
	}

	for _, e := range t.Exchanges {
		err := ch.ExchangeDeclare(
			e.Name,
			e.Kind,
			e.Durable,
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return &TopologyError{Component: "exchange", Name: e.Name, Err: err}
		}
	}

	for _, q := range t.Queues {
		_, err := ch.QueueDeclare(
			q.Name,
			q.Durable,
			q.AutoDelete,
			q.Exclusive,
			false, // no-wait
			q.arguments(),
		)
		if err != nil {
			return &TopologyError{Component: "queue", Name: q.Name, Err: err}
		}
	}

	for _, b := range t.Bindings {
		err := ch.QueueBind(
			b.Queue,
			b.RoutingKey,
			b.Exchange,
			false, // no-wait
			nil,
		)
		if err != nil {
			return &TopologyError{Component: "binding", Name: fmt.Sprintf("%s -> %s", b.Queue, b.Exchange), Err: err}
		}
	}

	return nil
}

// arguments builds the x-arguments table for queue declaration.
func (q QueueSpec) arguments() amqp.Table {
	args := amqp.Table{}
	for k, v := range q.Arguments {
		args[k] = v
	}
	if q.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = q.DeadLetterExchange
	}
	if q.DeadLetterRoutingKey != "" {
		args["x-dead-letter-routing-key"] = q.DeadLetterRoutingKey
	}
	if q.MessageTTL > 0 {
		args["x-message-ttl"] = q.MessageTTL.Milliseconds()
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

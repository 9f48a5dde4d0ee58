// Command hotelmq-init declares the platform's broker topology once and
// exits. It is run at deployment time, before the services start, so that
// a structural mismatch with an existing broker surfaces as a failed
// deployment instead of a crash-looping service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fawazv/hotelmq/hotel"
	"github.com/fawazv/hotelmq/internal/config"
	"github.com/fawazv/hotelmq/internal/rabbitmq"
	"github.com/fawazv/hotelmq/messaging"
)

func main() {
	cfg, err := config.Load("hotelmq-init", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cfg.Logger()

	supervisor := rabbitmq.NewConnectionSupervisor(cfg.BrokerURL,
		rabbitmq.WithLogger(logger),
		rabbitmq.WithMaxAttempts(5),
	)
	defer supervisor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	topologies, err := platformTopologies()
	if err != nil {
		logger.Error("invalid platform topology", "error", err)
		os.Exit(1)
	}

	for _, topology := range topologies {
		if err := supervisor.DeclareTopology(ctx, topology); err != nil {
			logger.Error("topology declaration failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("broker topology declared", "broker", rabbitmq.SanitizeURL(cfg.BrokerURL))
}

// platformTopologies lists every domain's broker layout. Adding a service
// means adding its domain here.
func platformTopologies() ([]rabbitmq.Topology, error) {
	reservations := hotel.DomainTopology(hotel.DomainReservations,
		hotel.QueueBinding{Purpose: "booking", Patterns: []string{"reservation.*"}},
	).Merge(hotel.RPCTopology(hotel.DomainReservations))

	payments := hotel.DomainTopology(hotel.DomainPayments,
		hotel.QueueBinding{Purpose: "processing", Patterns: []string{"payment.*"}},
		hotel.QueueBinding{Purpose: "reconciliation", Patterns: []string{"payment.completed", "payment.refunded"}},
	)

	housekeeping := hotel.DomainTopology(hotel.DomainHousekeeping,
		hotel.QueueBinding{Purpose: "cleaning", Patterns: []string{"room.*"}},
		// Checkout events live on the reservations exchange; cleaning is
		// triggered across domains.
		hotel.QueueBinding{Purpose: "cleaning", SourceDomain: hotel.DomainReservations, Patterns: []string{hotel.EventReservationCheckedOut}},
	)

	delayed, err := delayedTopology(hotel.DelayedConfig(hotel.DomainNotifications, hotel.EventNotificationRequested))
	if err != nil {
		return nil, err
	}
	notifications := hotel.DomainTopology(hotel.DomainNotifications,
		hotel.QueueBinding{Purpose: "delivery", Patterns: []string{"notification.*"}},
	).Merge(delayed)

	guests := hotel.DomainTopology(hotel.DomainGuests,
		hotel.QueueBinding{Purpose: "registration", Patterns: []string{"guest.*"}},
	).Merge(hotel.RPCTopology(hotel.DomainGuests))

	return []rabbitmq.Topology{reservations, payments, housekeeping, notifications, guests}, nil
}

// delayedTopology builds a scheduler's holding queue without keeping the
// scheduler around.
func delayedTopology(cfg messaging.SchedulerConfig) (rabbitmq.Topology, error) {
	scheduler, err := messaging.NewDelayedScheduler(nil, cfg)
	if err != nil {
		return rabbitmq.Topology{}, err
	}
	return scheduler.Topology(), nil
}

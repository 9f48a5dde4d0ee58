package hotel

// Event names published across the platform. Consumers dispatch on these,
// not on routing keys, because one queue may aggregate multiple routing
// patterns.
const (
	EventReservationCreated    = "reservation.created"
	EventReservationCancelled  = "reservation.cancelled"
	EventReservationCheckedIn  = "reservation.checkedIn"
	EventReservationCheckedOut = "reservation.checkedOut"

	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"

	EventRoomCleaned     = "room.cleaned"
	EventRoomMaintenance = "room.maintenanceRequired"

	EventNotificationRequested = "notification.requested"
	EventNotificationSent      = "notification.sent"

	EventGuestRegistered = "guest.registered"
)

// Platform domains, one per service.
const (
	DomainReservations  = "reservations"
	DomainPayments      = "payments"
	DomainHousekeeping  = "housekeeping"
	DomainNotifications = "notifications"
	DomainGuests        = "guests"
)

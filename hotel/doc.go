// Package hotel carries the platform-wide broker addressing conventions
// and the per-domain topology builders shared by every service. Exchange,
// queue, and event names are derived, never hand-written, so that the
// dead-letter and delayed-delivery wiring stays consistent across domains.
package hotel

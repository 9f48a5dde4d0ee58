// Package messaging implements the platform's reliable-delivery layer on
// top of the connection supervisor: publishing, consuming with
// dead-lettering, TTL-based delayed delivery, request/reply over
// asynchronous queues, and idempotent consumption.
//
// All components borrow the broker channel per operation from a
// ChannelProvider and never cache it, so a reconnect is transparent to
// them. Correlation ids travel on the context through the whole causal
// chain: inbound message, handler, outbound publishes, and log lines.
package messaging

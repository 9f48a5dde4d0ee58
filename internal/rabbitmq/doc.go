// Package rabbitmq supervises the physical broker connection and declares
// messaging topology.
//
// The ConnectionSupervisor maintains at most one live connection and one
// live channel process-wide. Close notifications from the broker clear the
// cached handles; the next Channel call rebuilds them and replays every
// registered Topology before returning, so reconnects never lose declared
// broker state.
package rabbitmq

// Package contracts defines the message envelope shared by every service
// on the platform and the validation rules for event names.
//
// An envelope round-trips through JSON unchanged: a consumer bound to the
// publishing exchange observes the same event, data, and correlation id the
// producer wrote.
package contracts

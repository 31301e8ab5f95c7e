// Package eventlog models the UEFI/TCG event log a virtual firmware
// emits while booting a TD, and folds it into a register exactly as
// the firmware's RTMR_EXTEND sequence would. The fold itself ports the
// teacher tools' measureLog; this package additionally keeps each
// event's name and raw measured bytes around, since spec.md §6's
// --transcript output must name every event a register's value is
// built from.
package eventlog

import "github.com/tdxpredict/tdx-measure/internal/hasher"

// Event is one RTMR_EXTEND operation: a human-readable name (for
// transcript output) and the digest that was extended.
type Event struct {
	Name   string
	Digest hasher.Register
	// Data is the raw bytes that were hashed to produce Digest, kept
	// only when the event was added via ExtendWithData or ExtendBytes;
	// nil for Extend, since
	// some measured inputs (firmware images, kernels) are too large to
	// retain for every event.
	Data []byte
}

// Log is an ordered, append-only sequence of events destined for one
// register.
type Log struct {
	Register string // e.g. "RTMR0".
	Events   []Event
}

// New starts an empty log for the named register.
func New(register string) *Log {
	return &Log{Register: register}
}

// Extend appends an event with the given name and digest.
func (l *Log) Extend(name string, digest hasher.Register) {
	l.Events = append(l.Events, Event{Name: name, Digest: digest})
}

// ExtendWithData appends an event, additionally retaining the raw
// bytes that were hashed into digest for transcript/debug output.
func (l *Log) ExtendWithData(name string, digest hasher.Register, data []byte) {
	l.Events = append(l.Events, Event{Name: name, Digest: digest, Data: data})
}

// ExtendBytes hashes data with SHA-384 and appends the resulting event.
func (l *Log) ExtendBytes(name string, data []byte) {
	l.ExtendWithData(name, hasher.Sum384(data), data)
}

// Fold replays the log from the zero register value, producing the
// final register value the firmware would compute.
func (l *Log) Fold() hasher.Register {
	digests := make([]hasher.Register, len(l.Events))
	for i, e := range l.Events {
		digests[i] = e.Digest
	}
	return hasher.ReplayLog(digests)
}

// Names returns the event names in order, for transcript rendering.
func (l *Log) Names() []string {
	names := make([]string, len(l.Events))
	for i, e := range l.Events {
		names[i] = e.Name
	}
	return names
}

// Package tracker runs the two mail workflows of applytrack.
//
// SendApplication emails an application with the rendered resume attached
// through one of the owner's linked Gmail accounts and records it.
// SyncInbox reads recent application mail, correlates each message with a
// tracked application and records status transitions.
//
// Both workflows stop on validation and credential errors before any
// external side effect. Once a message has been sent, bookkeeping failures
// are reported as warnings and the send still counts as a success.
package tracker

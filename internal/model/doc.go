// Package model defines the records shared by the Gmail integration and the
// application tracker: linked mailbox credentials, tracked applications, the
// append-only event trail, persisted email records and the normalized view of
// a provider message.
package model

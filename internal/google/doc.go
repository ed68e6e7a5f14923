// Package google manages the lifecycle of Google OAuth credentials linked to
// applytrack users.
//
// TokenManager makes a stored credential usable: it returns the record
// untouched while the access token is valid, and otherwise refreshes it once
// against the Google token endpoint under a per-credential lock, persisting
// the result. It also runs the authorization code exchange that links a new
// mailbox.
//
// Two Locker implementations are provided: LocalLocker for a single process
// and RedisLocker for deployments with several instances sharing a database.
package google

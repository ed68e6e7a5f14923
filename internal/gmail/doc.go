// Package gmail is the mail transport used by the application workflows.
//
// A Client is bound to one access token and talks to the Gmail REST API
// through google.golang.org/api/gmail/v1. It offers three calls:
//   - Send delivers a raw envelope produced by the mailer package
//   - ListMessages pages through message ids matching a search query
//   - GetMessage fetches one message and normalizes it into a model.InboundMessage
//
// Provider JSON never leaves this package. Non-2xx answers are returned as
// *apperr.TransportError carrying the HTTP status and body; nothing is
// retried here.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, cred.AccessToken, gmail.Options{})
//	if err != nil {
//	    return err
//	}
//	refs, err := client.ListMessages(ctx, gmail.SentApplicationsQuery, 50)
package gmail

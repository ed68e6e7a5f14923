package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are requested when a user links a mailbox: identity for
// the account label, send for applications, read-only for inbox sync.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	gmail.GmailSendScope,
	gmail.GmailReadonlyScope,
}

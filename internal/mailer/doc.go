// Package mailer builds the MIME envelope for an outgoing application email.
//
// The envelope is multipart/mixed with an HTML part and one attachment,
// serialized with github.com/emersion/go-message and encoded as unpadded
// base64url, which is the form the Gmail send endpoint expects in its raw
// field.
package mailer

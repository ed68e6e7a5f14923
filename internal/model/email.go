package model

import "time"

// Direction tells whether an EmailRecord was sent by the owner or observed during sync.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// EmailRecord is a persisted copy of one provider message.
// (CredentialID, ProviderMessageID) is unique.
type EmailRecord struct {
	ID                string    `db:"id" json:"id"`
	Owner             string    `db:"owner" json:"owner"`
	CredentialID      string    `db:"credential_id" json:"credential_id"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id"`
	ThreadID          string    `db:"thread_id" json:"thread_id"`
	Direction         Direction `db:"direction" json:"direction"`
	From              string    `db:"from_addr" json:"from"`
	To                string    `db:"to_addr" json:"to"`
	Subject           string    `db:"subject" json:"subject"`
	Snippet           string    `db:"snippet" json:"snippet"`
	Body              string    `db:"body" json:"body,omitempty"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// InboundMessage is a provider message normalized at the transport boundary.
type InboundMessage struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Snippet  string
	Body     string
	Date     time.Time
}

// OutboundMessage is one send operation. It is encoded into a transport
// envelope and discarded.
type OutboundMessage struct {
	From           string
	FromName       string
	To             string
	Subject        string
	HTMLBody       string
	Attachment     []byte
	AttachmentName string
}

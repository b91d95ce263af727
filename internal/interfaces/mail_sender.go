package interfaces

import "context"

// MailTransport delivers a fully composed RFC 5322 message
type MailTransport interface {
	Send(ctx context.Context, from string, to []string, message []byte) error
}

// OutreachSender sends outreach mail to every record that is ready to be contacted
type OutreachSender interface {
	SendPending(ctx context.Context, store RecordStore) (int, error)
}

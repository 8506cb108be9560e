package connectors

import "github.com/Aaron-Tawil/super-order-automation/internal"

type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}

package payments

import (
	"time"

	"github.com/PlebeianApp/market-sub002/engine/library"
)

// PendingInvoice is a server-issued payment request awaiting settlement. It
// lives only in volatile memory: never published, never persisted. Unpaid
// invoices are swept after invoiceMaxAge.
type PendingInvoice struct {
	PaymentRequest string          `json:"payment_request"`
	PaymentHash    library.Sha256  `json:"payment_hash"`
	Name           library.Alias   `json:"name"`
	Requester      library.Account `json:"requester"`
	AmountExpected int64           `json:"amount_expected"` //sats
	CreatedAt      time.Time       `json:"created_at"`
}

package webhook

import "fmt"

// ClientEvent is an invoice notification type delivered to client webhooks.
type ClientEvent string

const (
	// InvoiceCreated fires when a new invoice is created.
	InvoiceCreated ClientEvent = "invoiceCreated"
	// InvoicePending fires when a payment is seen with at least one confirmation.
	InvoicePending ClientEvent = "invoicePending"
	// InvoicePaid fires when all required confirmations arrived.
	InvoicePaid ClientEvent = "invoicePaid"
	// InvoiceCompleted fires when funds reach the merchant balance.
	InvoiceCompleted ClientEvent = "invoiceCompleted"
	// InvoiceCancelled fires when the merchant cancels the invoice.
	InvoiceCancelled ClientEvent = "invoiceCancelled"
	// InvoiceTimedOut fires when the invoice expires.
	InvoiceTimedOut ClientEvent = "invoiceTimedOut"
	// PaymentCreated fires when a temporary payment address is created.
	PaymentCreated ClientEvent = "paymentCreated"
	// PaymentTimedOut fires when that address is no longer available.
	PaymentTimedOut ClientEvent = "paymentTimedOut"
)

// ClientEvents lists every known ClientEvent.
var ClientEvents = []ClientEvent{
	InvoiceCreated, InvoicePending, InvoicePaid, InvoiceCompleted,
	InvoiceCancelled, InvoiceTimedOut, PaymentCreated, PaymentTimedOut,
}

func (e ClientEvent) String() string { return string(e) }

// ParseClientEvent maps a wire name to a ClientEvent.
func ParseClientEvent(s string) (ClientEvent, error) {
	for _, e := range ClientEvents {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown client event %q", s)
}

// FilterClientEvents returns the events in events equal to kind.
func FilterClientEvents(events []ClientEvent, kind ClientEvent) []ClientEvent {
	var out []ClientEvent
	for _, e := range events {
		if e == kind {
			out = append(out, e)
		}
	}
	return out
}

// WalletEvent is a transaction notification type delivered to wallet and
// address webhooks.
type WalletEvent string

const (
	InternalReceive                  WalletEvent = "internalReceive"
	UtxoExternalReceive              WalletEvent = "utxoExternalReceive"
	AccountBasedExternalReceive      WalletEvent = "accountBasedExternalReceive"
	InternalSpend                    WalletEvent = "internalSpend"
	ExternalSpend                    WalletEvent = "externalSpend"
	SameUserReceive                  WalletEvent = "sameUserReceive"
	AccountBasedExternalTokenReceive WalletEvent = "accountBasedExternalTokenReceive"
	AccountBasedTokenSpend           WalletEvent = "accountBasedTokenSpend"
)

// WalletEvents lists every known WalletEvent.
var WalletEvents = []WalletEvent{
	InternalReceive, UtxoExternalReceive, AccountBasedExternalReceive,
	InternalSpend, ExternalSpend, SameUserReceive,
	AccountBasedExternalTokenReceive, AccountBasedTokenSpend,
}

func (e WalletEvent) String() string { return string(e) }

// ParseWalletEvent maps a wire name to a WalletEvent.
func ParseWalletEvent(s string) (WalletEvent, error) {
	for _, e := range WalletEvents {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown wallet event %q", s)
}

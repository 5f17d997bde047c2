package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientEvent(t *testing.T) {
	for _, e := range ClientEvents {
		got, err := ParseClientEvent(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseClientEvent("InvoicePaid")
	assert.Error(t, err, "names are case sensitive")
}

func TestParseWalletEvent(t *testing.T) {
	for _, e := range WalletEvents {
		got, err := ParseWalletEvent(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseWalletEvent("invoicePaid")
	assert.Error(t, err)
}

func TestFilterClientEvents(t *testing.T) {
	events := []ClientEvent{InvoicePaid, InvoiceCreated, InvoicePaid, PaymentTimedOut}

	assert.Equal(t, []ClientEvent{InvoicePaid, InvoicePaid}, FilterClientEvents(events, InvoicePaid))
	assert.Empty(t, FilterClientEvents(events, InvoiceCancelled))
	assert.Empty(t, FilterClientEvents(nil, InvoicePaid))
}

package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpayments-webhooks/pkg/validation"
)

const invoicePaidBody = `{
	"event": "invoicePaid",
	"invoice_id": "inv_8f2a",
	"merchant_id": "m_1",
	"amount": "0.00150000",
	"currency": "1",
	"status": "paid",
	"created_at": "2024-05-01T10:00:00Z",
	"payment_data": {
		"currency_id": "1",
		"address": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"amount": "0.0015",
		"txid": "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",
		"confirmations": 3
	},
	"metadata": {"order": "A-100"}
}`

const walletBody = `{
	"event": "accountBasedExternalReceive",
	"wallet_id": "w_1",
	"wallet_label": "hot-wallet",
	"address": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"currency_id": "4:0xdac17f958d2ee523a2206206994597c13d831ec7",
	"transaction_id": "tx_77",
	"amount": "12.5",
	"fee": "0.001",
	"confirmations": 12,
	"status": "confirmed",
	"created_at": "2024-05-01T10:00:00Z"
}`

func TestDecodeEvent_Client(t *testing.T) {
	ev, err := DecodeEvent([]byte(invoicePaidBody))
	require.NoError(t, err)

	assert.Equal(t, KindClient, ev.Kind)
	assert.Equal(t, "invoicePaid", ev.Type)
	assert.Equal(t, "inv_8f2a", ev.Subject())
	require.NotNil(t, ev.Client)
	assert.Nil(t, ev.Wallet)
	assert.Equal(t, InvoicePaid, ev.Client.Event)
	require.NotNil(t, ev.Client.PaymentData)
	require.NotNil(t, ev.Client.PaymentData.Confirmations)
	assert.Equal(t, uint32(3), *ev.Client.PaymentData.Confirmations)
	assert.Contains(t, ev.Client.Metadata, "order")
}

func TestDecodeEvent_Wallet(t *testing.T) {
	ev, err := DecodeEvent([]byte(walletBody))
	require.NoError(t, err)

	assert.Equal(t, KindWallet, ev.Kind)
	assert.Equal(t, "tx_77", ev.Subject())
	require.NotNil(t, ev.Wallet)
	assert.Equal(t, AccountBasedExternalReceive, ev.Wallet.Event)
	assert.Equal(t, uint32(12), ev.Wallet.Confirmations)
}

func TestDecodeEvent_Errors(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		_, err := DecodeEvent([]byte("event=invoicePaid"))
		assert.Error(t, err)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event":"invoiceRefunded"}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"invoice_id":"inv_1"}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("invalid fields", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event":"invoicePaid","invoice_id":"inv_1","merchant_id":"m","amount":"-1","currency":"1","status":"paid"}`))
		var serr *validation.StructError
		require.ErrorAs(t, err, &serr)
		require.Len(t, serr.Fields, 1)
		assert.Equal(t, "cp_amount", serr.Fields[0].Tag)
		assert.Contains(t, serr.Fields[0].Field, "amount")
	})

	t.Run("malformed ethereum address", func(t *testing.T) {
		body := []byte(`{"event":"internalSpend","wallet_id":"w","address":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeZ","currency_id":"4","transaction_id":"t","amount":"1","status":"ok"}`)
		var serr *validation.StructError
		_, err := DecodeEvent(body)
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "crypto_address", serr.Fields[0].Tag)
	})

	t.Run("wrong field type", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"event":"internalSpend","confirmations":"many"}`))
		assert.Error(t, err)
	})
}

func TestDecodeEvent_UnchecksummedMixedCaseAddress(t *testing.T) {
	body := []byte(`{"event":"accountBasedExternalReceive","wallet_id":"w_1","address":"0x742d35Cc6635C0532925a3b8D6ac492395a3d728",` +
		`"currency_id":"4","transaction_id":"tx_1","amount":"2.5","status":"confirmed"}`)

	ev, err := DecodeEvent(body)
	require.NoError(t, err)
	require.NotNil(t, ev.Wallet)
	assert.Equal(t, "0x742d35Cc6635C0532925a3b8D6ac492395a3d728", ev.Wallet.Address)
}

func TestEvent_SubjectEmpty(t *testing.T) {
	assert.Equal(t, "", (&Event{}).Subject())
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpayments-webhooks/pkg/webhook"
)

func invoiceEvent(t *testing.T, event, amount string) *webhook.Event {
	t.Helper()
	body := `{"event":"` + event + `","invoice_id":"inv_1","merchant_id":"m_1","amount":"` + amount + `","currency":"1","status":"paid"}`
	ev, err := webhook.DecodeEvent([]byte(body))
	require.NoError(t, err)
	return ev
}

func TestCompile_Empty(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	assert.Nil(t, f)

	ok, err := f.Match(invoiceEvent(t, "invoicePaid", "1"), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompile_Rejects(t *testing.T) {
	tests := []string{
		`kind ==`,
		`amount + 1`,
		`unknown_field == "x"`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			assert.Error(t, err)
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		source string
		event  string
		amount string
		want   bool
	}{
		{"type equality", `type == "invoicePaid"`, "invoicePaid", "1", true},
		{"type mismatch", `type == "invoicePaid"`, "invoiceCreated", "1", false},
		{"kind and amount", `kind == "client" && amount >= 0.5`, "invoiceCompleted", "0.75", true},
		{"amount below", `amount > 100`, "invoiceCompleted", "99.99", false},
		{"membership", `type in ["invoicePaid", "invoiceCompleted"]`, "invoiceCompleted", "1", true},
		{"subject prefix", `subject startsWith "inv_"`, "invoicePaid", "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.source)
			require.NoError(t, err)

			ok, err := f.Match(invoiceEvent(t, tt.event, tt.amount), "client-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestNewEnv_Wallet(t *testing.T) {
	body := `{"event":"utxoExternalReceive","wallet_id":"w_1","address":"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2",` +
		`"currency_id":"1","transaction_id":"tx_9","amount":"0.002","status":"confirmed"}`
	ev, err := webhook.DecodeEvent([]byte(body))
	require.NoError(t, err)

	env := NewEnv(ev, "client-1")
	assert.Equal(t, "wallet", env.Kind)
	assert.Equal(t, "tx_9", env.Subject)
	assert.Equal(t, "1", env.Currency)
	assert.Equal(t, "confirmed", env.Status)
	assert.Equal(t, "client-1", env.ClientID)
	assert.InDelta(t, 0.002, env.Amount, 1e-12)
}

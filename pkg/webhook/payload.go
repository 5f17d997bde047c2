package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"coinpayments-webhooks/pkg/validation"
)

// ClientPayload is the body of an invoice notification.
type ClientPayload struct {
	Event       ClientEvent                `json:"event" validate:"required"`
	InvoiceID   string                     `json:"invoice_id" validate:"required"`
	MerchantID  string                     `json:"merchant_id" validate:"required"`
	Amount      string                     `json:"amount" validate:"required,cp_amount"`
	Currency    string                     `json:"currency" validate:"required,cp_currency"`
	Status      string                     `json:"status" validate:"required"`
	CreatedAt   string                     `json:"created_at"`
	PaymentData *PaymentData               `json:"payment_data,omitempty" validate:"omitempty"`
	Metadata    map[string]json.RawMessage `json:"metadata,omitempty"`
}

// PaymentData describes the on-chain payment attached to an invoice event.
type PaymentData struct {
	CurrencyID    string  `json:"currency_id" validate:"required,cp_currency"`
	Address       string  `json:"address" validate:"required,crypto_address"`
	Amount        string  `json:"amount" validate:"required,cp_amount"`
	TxID          *string `json:"txid,omitempty"`
	Confirmations *uint32 `json:"confirmations,omitempty"`
	FirstSeen     *string `json:"first_seen,omitempty"`
}

// WalletPayload is the body of a wallet or address notification.
type WalletPayload struct {
	Event         WalletEvent                `json:"event" validate:"required"`
	WalletID      string                     `json:"wallet_id" validate:"required"`
	WalletLabel   string                     `json:"wallet_label"`
	AddressID     *string                    `json:"address_id,omitempty"`
	Address       string                     `json:"address" validate:"required,crypto_address"`
	CurrencyID    string                     `json:"currency_id" validate:"required,cp_currency"`
	TransactionID string                     `json:"transaction_id" validate:"required"`
	Amount        string                     `json:"amount" validate:"required,cp_amount"`
	Fee           *string                    `json:"fee,omitempty" validate:"omitempty,numeric"`
	TxID          *string                    `json:"txid,omitempty"`
	Confirmations uint32                     `json:"confirmations"`
	Status        string                     `json:"status" validate:"required"`
	CreatedAt     string                     `json:"created_at"`
	Metadata      map[string]json.RawMessage `json:"metadata,omitempty"`
}

// EventKind says which webhook family a notification belongs to.
type EventKind string

const (
	KindClient EventKind = "client"
	KindWallet EventKind = "wallet"
)

// Event is a decoded, validated notification body. Exactly one of Client
// and Wallet is set.
type Event struct {
	Kind   EventKind
	Type   string
	Client *ClientPayload
	Wallet *WalletPayload
}

// Subject returns the id of the invoice or transaction the event is about.
func (e *Event) Subject() string {
	switch {
	case e.Client != nil:
		return e.Client.InvoiceID
	case e.Wallet != nil:
		return e.Wallet.TransactionID
	}
	return ""
}

// ErrUnknownEvent is returned by DecodeEvent for an unrecognised event name.
var ErrUnknownEvent = errors.New("webhook: unknown event type")

// DecodeEvent decodes an authenticated notification body. Call it only
// after the raw bytes passed verification.
func DecodeEvent(raw []byte) (*Event, error) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	if _, err := ParseClientEvent(envelope.Event); err == nil {
		var p ClientPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode client payload: %w", err)
		}
		if err := validation.Struct(&p); err != nil {
			return nil, err
		}
		return &Event{Kind: KindClient, Type: envelope.Event, Client: &p}, nil
	}

	if _, err := ParseWalletEvent(envelope.Event); err == nil {
		var p WalletPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode wallet payload: %w", err)
		}
		if err := validation.Struct(&p); err != nil {
			return nil, err
		}
		return &Event{Kind: KindWallet, Type: envelope.Event, Wallet: &p}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Event)
}

// Package filter decides which authenticated notifications are forwarded to
// the broker, using an expr-lang boolean expression over the decoded event.
package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"coinpayments-webhooks/pkg/validation"
	"coinpayments-webhooks/pkg/webhook"
)

// Env is what an expression can see. Amount is a float for comparisons
// only; the published body keeps the exact decimal string.
type Env struct {
	Kind     string  `expr:"kind"`
	Type     string  `expr:"type"`
	Subject  string  `expr:"subject"`
	ClientID string  `expr:"client_id"`
	Currency string  `expr:"currency"`
	Status   string  `expr:"status"`
	Amount   float64 `expr:"amount"`
}

// Filter is a compiled expression. A nil *Filter matches everything.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile parses source. An empty source yields a nil Filter.
func Compile(source string) (*Filter, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source,
		expr.Env(Env{}),
		expr.AsBool(),
		expr.DisableBuiltin("now"),
		expr.DisableBuiltin("date"),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &Filter{source: source, program: program}, nil
}

// String returns the expression source.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match reports whether event should be published.
func (f *Filter) Match(event *webhook.Event, clientID string) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, NewEnv(event, clientID))
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}
	return out.(bool), nil
}

// NewEnv flattens event into the expression environment.
func NewEnv(event *webhook.Event, clientID string) Env {
	env := Env{
		Kind:     string(event.Kind),
		Type:     event.Type,
		Subject:  event.Subject(),
		ClientID: clientID,
	}

	var amount string
	switch {
	case event.Client != nil:
		env.Currency = event.Client.Currency
		env.Status = event.Client.Status
		amount = event.Client.Amount
	case event.Wallet != nil:
		env.Currency = event.Wallet.CurrencyID
		env.Status = event.Wallet.Status
		amount = event.Wallet.Amount
	}

	if d, err := validation.ParseAmount(amount); err == nil {
		env.Amount = d.InexactFloat64()
	}
	return env
}

// Package gateway simulates the hosted checkout of the two supported payment
// providers. No money moves; each checkout mints a correlation token and a
// redirect URL that lands on the verify endpoint.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	dErrors "formdesk/pkg/domain-errors"
)

// Provider identifies a payment provider. Values match the stored
// paymentMethod of a paid application.
type Provider string

const (
	ProviderCard   Provider = "stripe"
	ProviderWallet Provider = "paypal"
)

// Return query parameters carrying the correlation token.
const (
	ParamSessionID     = "session_id"
	ParamWalletOrderID = "paypal_order_id"
	ParamApplicationID = "application_id"
)

// Checkout is a created checkout session.
type Checkout struct {
	Provider      Provider
	Token         string
	RedirectURL   string
	ApplicationID uuid.UUID
	AmountCents   int64
}

// Gateway creates checkout sessions for one provider.
type Gateway interface {
	Provider() Provider
	CreateCheckout(ctx context.Context, applicationID uuid.UUID, amountCents int64) (*Checkout, error)
}

// tokenSource returns 32 random hex characters.
type tokenSource func() (string, error)

func randomHex() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

type simulated struct {
	provider  Provider
	param     string
	returnURL string
	token     func(raw string) string
	random    tokenSource
}

func (g *simulated) Provider() Provider {
	return g.provider
}

func (g *simulated) CreateCheckout(ctx context.Context, applicationID uuid.UUID, amountCents int64) (*Checkout, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePaymentFailed, "checkout aborted")
	}
	raw, err := g.random()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePaymentFailed, "failed to generate checkout token")
	}
	token := g.token(raw)

	redirect, err := buildReturnURL(g.returnURL, g.param, token, applicationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePaymentFailed, "failed to build checkout url")
	}

	return &Checkout{
		Provider:      g.provider,
		Token:         token,
		RedirectURL:   redirect,
		ApplicationID: applicationID,
		AmountCents:   amountCents,
	}, nil
}

func buildReturnURL(base, param, token string, applicationID uuid.UUID) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("return url %q is not absolute", base)
	}
	q := u.Query()
	q.Set(param, token)
	q.Set(ParamApplicationID, applicationID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewCardGateway simulates a card checkout; tokens look like cs_<hex>.
func NewCardGateway(returnURL string) Gateway {
	return &simulated{
		provider:  ProviderCard,
		param:     ParamSessionID,
		returnURL: returnURL,
		token:     func(raw string) string { return "cs_" + raw[:24] },
		random:    randomHex,
	}
}

// NewWalletGateway simulates a wallet order; tokens look like PAYPAL_<HEX>.
func NewWalletGateway(returnURL string) Gateway {
	return &simulated{
		provider:  ProviderWallet,
		param:     ParamWalletOrderID,
		returnURL: returnURL,
		token:     func(raw string) string { return "PAYPAL_" + strings.ToUpper(raw[:16]) },
		random:    randomHex,
	}
}

// Registry selects a gateway by provider.
type Registry struct {
	gateways map[Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

func (r *Registry) Get(p Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported payment provider %q", p))
	}
	return g, nil
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusSucceeded indicates the provider reports the charge as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider declined and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the captured amount has been returned.
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrInvalidCard indicates the submitted card details are malformed.
var ErrInvalidCard = errors.New("payments: invalid card")

// Card carries the raw card details submitted at checkout. The simulated
// gateway never stores them.
type Card struct {
	Number   string
	Holder   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// ChargeRequest captures the payload required to charge a card.
type ChargeRequest struct {
	OrderID     string
	AmountCents int64
	Currency    string
	Card        Card
	Metadata    map[string]string
}

// RefundRequest defines a provider refund attempt against an earlier charge.
type RefundRequest struct {
	TransactionRef string
	AmountCents    int64
	Reason         string
}

// Result normalises provider-specific outcomes for storage. A declined
// charge is a Result with StatusFailed and a FailureReason, not an error:
// errors are reserved for transport and configuration failures.
type Result struct {
	Provider       string
	TransactionRef string
	Status         Status
	AmountCents    int64
	Currency       string
	FailureReason  string
	ProcessedAt    time.Time
}

// Provider defines the contract payment adapters implement. Implementations
// perform exactly one attempt per call; retry policy belongs to the caller.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (Result, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no preference is given.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap[ProviderCard]; ok {
		m.defaultProvider = ProviderCard
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Charge delegates to the resolved provider and stamps the provider key.
func (m *Manager) Charge(ctx context.Context, preferred string, req ChargeRequest) (Result, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return Result{}, err
	}
	result, err := provider.Charge(ctx, req)
	if err != nil {
		return Result{}, err
	}
	result.Provider = key
	return result, nil
}

// Refund delegates to the resolved provider and stamps the provider key.
func (m *Manager) Refund(ctx context.Context, preferred string, req RefundRequest) (Result, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return Result{}, err
	}
	result, err := provider.Refund(ctx, req)
	if err != nil {
		return Result{}, err
	}
	result.Provider = key
	return result, nil
}

package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderCard is the registration key for the simulated card acquirer.
const ProviderCard = "cb"

const (
	declineSuffix       = "0000"
	reasonCardDeclined  = "CARD_DECLINED"
	minCardNumberDigits = 12
	maxCardNumberDigits = 19
)

// CardProvider simulates a card acquirer. Every well-formed card is approved
// except numbers ending in 0000, which are declined with CARD_DECLINED.
// Transaction references are opaque UUIDs.
type CardProvider struct {
	clock  func() time.Time
	newRef func() string
}

// CardProviderOption customises the simulated acquirer.
type CardProviderOption func(*CardProvider)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) CardProviderOption {
	return func(p *CardProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithReferenceGenerator injects a deterministic transaction reference source.
func WithReferenceGenerator(gen func() string) CardProviderOption {
	return func(p *CardProvider) {
		if gen != nil {
			p.newRef = gen
		}
	}
}

// NewCardProvider constructs the simulated acquirer.
func NewCardProvider(opts ...CardProviderOption) *CardProvider {
	p := &CardProvider{
		clock:  time.Now,
		newRef: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Charge performs a single simulated authorisation and capture.
func (p *CardProvider) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.AmountCents <= 0 {
		return Result{}, fmt.Errorf("payments: amount must be positive, got %d", req.AmountCents)
	}

	number, err := normaliseCardNumber(req.Card.Number)
	if err != nil {
		return Result{}, err
	}

	now := p.clock().UTC()
	result := Result{
		TransactionRef: p.newRef(),
		AmountCents:    req.AmountCents,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		ProcessedAt:    now,
	}

	if strings.HasSuffix(number, declineSuffix) {
		result.Status = StatusFailed
		result.FailureReason = reasonCardDeclined
		return result, nil
	}

	result.Status = StatusSucceeded
	return result, nil
}

// Refund returns the captured amount for a prior transaction.
func (p *CardProvider) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.TransactionRef) == "" {
		return Result{}, fmt.Errorf("payments: transaction reference is required for refunds")
	}
	if req.AmountCents <= 0 {
		return Result{}, fmt.Errorf("payments: refund amount must be positive, got %d", req.AmountCents)
	}

	return Result{
		TransactionRef: req.TransactionRef,
		Status:         StatusRefunded,
		AmountCents:    req.AmountCents,
		ProcessedAt:    p.clock().UTC(),
	}, nil
}

func normaliseCardNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-':
			// Common formatting separators are tolerated.
		default:
			return "", fmt.Errorf("%w: unexpected character in card number", ErrInvalidCard)
		}
	}
	number := digits.String()
	if len(number) < minCardNumberDigits || len(number) > maxCardNumberDigits {
		return "", fmt.Errorf("%w: card number must be %d-%d digits", ErrInvalidCard, minCardNumberDigits, maxCardNumberDigits)
	}
	return number, nil
}

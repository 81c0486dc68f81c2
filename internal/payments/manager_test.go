package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	chargeReq ChargeRequest
	refundReq RefundRequest
	result    Result
	err       error
}

func (f *fakeProvider) Charge(_ context.Context, req ChargeRequest) (Result, error) {
	f.chargeReq = req
	return f.result, f.err
}

func (f *fakeProvider) Refund(_ context.Context, req RefundRequest) (Result, error) {
	f.refundReq = req
	return f.result, f.err
}

func TestNewManagerRequiresProviders(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)

	_, err = NewManager(map[string]Provider{"  ": &fakeProvider{}})
	require.Error(t, err)

	_, err = NewManager(map[string]Provider{"cb": nil})
	require.Error(t, err)
}

func TestManagerStampsProviderKey(t *testing.T) {
	provider := &fakeProvider{result: Result{Status: StatusSucceeded, TransactionRef: "tx-1"}}
	manager, err := NewManager(map[string]Provider{"CB": provider})
	require.NoError(t, err)

	result, err := manager.Charge(context.Background(), "", ChargeRequest{OrderID: "ord_1", AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, "cb", result.Provider)
	assert.Equal(t, "ord_1", provider.chargeReq.OrderID)
}

func TestManagerResolvesPreferredProvider(t *testing.T) {
	card := &fakeProvider{result: Result{Status: StatusSucceeded}}
	other := &fakeProvider{result: Result{Status: StatusSucceeded}}
	manager, err := NewManager(map[string]Provider{"cb": card, "wallet": other})
	require.NoError(t, err)

	result, err := manager.Charge(context.Background(), " Wallet ", ChargeRequest{AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, "wallet", result.Provider)
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"cb": &fakeProvider{}})
	require.NoError(t, err)

	_, err = manager.Charge(context.Background(), "paypal", ChargeRequest{AmountCents: 100})
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestManagerDefaultsToCardProvider(t *testing.T) {
	card := &fakeProvider{result: Result{Status: StatusSucceeded}}
	other := &fakeProvider{result: Result{Status: StatusSucceeded}}
	manager, err := NewManager(map[string]Provider{ProviderCard: card, "wallet": other})
	require.NoError(t, err)

	result, err := manager.Charge(context.Background(), "", ChargeRequest{AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, ProviderCard, result.Provider)
}

func TestManagerSingleProviderFallback(t *testing.T) {
	wallet := &fakeProvider{result: Result{Status: StatusRefunded}}
	manager, err := NewManager(map[string]Provider{"wallet": wallet})
	require.NoError(t, err)

	result, err := manager.Refund(context.Background(), "", RefundRequest{TransactionRef: "tx-1", AmountCents: 50})
	require.NoError(t, err)
	assert.Equal(t, "wallet", result.Provider)
	assert.Equal(t, "tx-1", wallet.refundReq.TransactionRef)
}

func TestWithDefaultProviderOverride(t *testing.T) {
	card := &fakeProvider{result: Result{Status: StatusSucceeded}}
	wallet := &fakeProvider{result: Result{Status: StatusSucceeded}}
	manager, err := NewManager(
		map[string]Provider{ProviderCard: card, "wallet": wallet},
		WithDefaultProvider("WALLET"),
	)
	require.NoError(t, err)

	result, err := manager.Charge(context.Background(), "", ChargeRequest{AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, "wallet", result.Provider)
}

func testCardClock() time.Time {
	return time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
}

func newTestCardProvider() *CardProvider {
	return NewCardProvider(
		WithClock(testCardClock),
		WithReferenceGenerator(func() string { return "ref-123" }),
	)
}

func TestCardProviderApprovesWellFormedCard(t *testing.T) {
	provider := newTestCardProvider()

	result, err := provider.Charge(context.Background(), ChargeRequest{
		OrderID:     "ord_1",
		AmountCents: 8900,
		Currency:    "eur",
		Card:        Card{Number: "4242 4242 4242 4242", Holder: "A. Client", ExpMonth: 12, ExpYear: 2030, CVC: "123"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, "ref-123", result.TransactionRef)
	assert.Equal(t, "EUR", result.Currency)
	assert.Equal(t, int64(8900), result.AmountCents)
	assert.Equal(t, testCardClock(), result.ProcessedAt)
	assert.Empty(t, result.FailureReason)
}

func TestCardProviderDeclinesZeroSuffix(t *testing.T) {
	provider := newTestCardProvider()

	result, err := provider.Charge(context.Background(), ChargeRequest{
		AmountCents: 8900,
		Card:        Card{Number: "4242-4242-4242-0000"},
	})
	require.NoError(t, err, "a decline is a result, not a transport error")

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "CARD_DECLINED", result.FailureReason)
	assert.Equal(t, "ref-123", result.TransactionRef)
}

func TestCardProviderRejectsMalformedNumbers(t *testing.T) {
	provider := newTestCardProvider()
	ctx := context.Background()

	cases := map[string]string{
		"too short": "4242 4242",
		"too long":  "42424242424242424242",
		"letters":   "4242abcd42424242",
		"symbols":   "4242_4242_4242_4242",
		"empty":     "",
	}
	for name, number := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := provider.Charge(ctx, ChargeRequest{AmountCents: 100, Card: Card{Number: number}})
			require.ErrorIs(t, err, ErrInvalidCard)
		})
	}
}

func TestCardProviderRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestCardProvider()

	_, err := provider.Charge(context.Background(), ChargeRequest{AmountCents: 0, Card: Card{Number: "424242424242"}})
	require.Error(t, err)
}

func TestCardProviderRefund(t *testing.T) {
	provider := newTestCardProvider()

	result, err := provider.Refund(context.Background(), RefundRequest{
		TransactionRef: "ref-123",
		AmountCents:    8900,
		Reason:         "customer cancellation",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusRefunded, result.Status)
	assert.Equal(t, "ref-123", result.TransactionRef)
	assert.Equal(t, int64(8900), result.AmountCents)
	assert.Equal(t, testCardClock(), result.ProcessedAt)
}

func TestCardProviderRefundRequiresReference(t *testing.T) {
	provider := newTestCardProvider()

	_, err := provider.Refund(context.Background(), RefundRequest{AmountCents: 100})
	require.Error(t, err)
}

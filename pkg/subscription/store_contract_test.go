package subscription_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

var contractNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// openStore returns an empty store whose clock reads contractNow.
type openStore func(t *testing.T) subscription.Store

func sameInstant(t *testing.T, want, got time.Time, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// runStoreContract checks the behavior every Store implementation shares.
func runStoreContract(t *testing.T, open openStore) {
	t.Run("create and get request", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-1")

		req, err := s.GetRequest(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestPending, req.Status)
		assert.Equal(t, "reader@example.com", req.Email)
		sameInstant(t, contractNow, req.CreatedAt)
		assert.Nil(t, req.ProcessedAt)

		err = s.CreateRequest(ctx, &subscription.SubscriptionRequest{ID: "order-1", Email: "x@example.com", Plan: "basic"})
		assert.ErrorIs(t, err, subscription.ErrRequestExists)

		_, err = s.GetRequest(ctx, "missing")
		assert.ErrorIs(t, err, subscription.ErrRequestNotFound)
	})

	t.Run("completed request is not completed again", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-1")

		ok, err := s.MarkCompleted(ctx, "order-1", subscription.Note{Actor: "webhook", Text: "paid"})
		require.NoError(t, err)
		assert.True(t, ok)

		first, err := s.GetRequest(ctx, "order-1")
		require.NoError(t, err)
		require.NotNil(t, first.ProcessedAt)

		ok, err = s.MarkCompleted(ctx, "order-1", subscription.Note{Actor: "webhook", Text: "paid again"})
		require.NoError(t, err)
		assert.False(t, ok)

		second, err := s.GetRequest(ctx, "order-1")
		require.NoError(t, err)
		sameInstant(t, *first.ProcessedAt, *second.ProcessedAt)
		assert.Equal(t, first.AdminNotes, second.AdminNotes)
		assert.Contains(t, second.AdminNotes, "[webhook] paid")
	})

	t.Run("terminal states do not move", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-2")

		ok, err := s.MarkCancelled(ctx, "order-2", subscription.Note{Actor: "admin", Text: "customer asked"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkCompleted(ctx, "order-2", subscription.Note{Actor: "webhook"})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
		assert.False(t, ok)

		ok, err = s.MarkFailed(ctx, "order-2", subscription.Note{Actor: "webhook"})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
		assert.False(t, ok)

		req, err := s.GetRequest(ctx, "order-2")
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestCancelled, req.Status)

		_, err = s.MarkFailed(ctx, "nope", subscription.Note{})
		assert.ErrorIs(t, err, subscription.ErrRequestNotFound)
		assert.ErrorIs(t, s.AppendNote(ctx, "nope", subscription.Note{Text: "x"}), subscription.ErrRequestNotFound)
	})

	t.Run("concurrent completion applies once", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-race")

		var (
			wg      sync.WaitGroup
			applied atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.MarkCompleted(ctx, "order-race", subscription.Note{Actor: "webhook"})
				assert.NoError(t, err)
				if ok {
					applied.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, applied.Load())
	})

	t.Run("transaction rolls back", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-tx")

		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(tx subscription.Store) error {
			ok, err := tx.MarkCompleted(ctx, "order-tx", subscription.Note{Actor: "webhook"})
			require.NoError(t, err)
			require.True(t, ok)

			_, err = tx.CreateUser(ctx, &subscription.UserAccount{Email: "reader@example.com"})
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)

		req, err := s.GetRequest(ctx, "order-tx")
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestPending, req.Status)
		assert.Empty(t, req.AdminNotes)

		_, err = s.FindUserByEmail(ctx, "reader@example.com")
		assert.ErrorIs(t, err, subscription.ErrUserNotFound)
	})

	t.Run("nested transaction joins the outer one", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-tx")

		err := s.WithinTx(ctx, func(tx subscription.Store) error {
			return tx.WithinTx(ctx, func(inner subscription.Store) error {
				_, err := inner.MarkCompleted(ctx, "order-tx", subscription.Note{Actor: "webhook"})
				return err
			})
		})
		require.NoError(t, err)

		req, err := s.GetRequest(ctx, "order-tx")
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestCompleted, req.Status)
	})

	t.Run("users", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)

		u, err := s.CreateUser(ctx, &subscription.UserAccount{Email: "Reader@Example.com", Name: "Reader"})
		require.NoError(t, err)
		assert.Equal(t, subscription.UserPending, u.Status)
		assert.Equal(t, "reader@example.com", u.Email)

		_, err = s.CreateUser(ctx, &subscription.UserAccount{Email: "reader@example.com"})
		assert.ErrorIs(t, err, subscription.ErrUserExists)

		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		err = s.UpdateUserSubscription(ctx, u.ID, subscription.SubscriptionUpdate{
			Plan: "standard", Start: start, End: end, MaxItems: 3, Status: subscription.UserActive,
		})
		require.NoError(t, err)

		got, err := s.FindUserByEmail(ctx, " READER@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "standard", got.SubscriptionType)
		require.NotNil(t, got.SubscriptionEnd)
		sameInstant(t, end, *got.SubscriptionEnd)
		assert.Equal(t, 3, got.MaxItems)
		assert.True(t, got.ActiveAt(start.Add(time.Hour)))
		assert.False(t, got.ActiveAt(end))
	})

	t.Run("invoice callbacks", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)

		require.NoError(t, s.SaveInvoice(ctx, &subscription.PaymentInvoice{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 50000, Currency: 980,
		}))
		assert.ErrorIs(t, s.SaveInvoice(ctx, &subscription.PaymentInvoice{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 1, Currency: 980,
		}), subscription.ErrInvoiceExists)

		ok, err := s.RecordInvoiceCallback(ctx, subscription.InvoiceCallback{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 50000, Currency: 980,
			Status: subscription.InvoiceSuccess, RawPayload: []byte(`{"a":1}`),
		})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.RecordInvoiceCallback(ctx, subscription.InvoiceCallback{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 50000, Currency: 980,
			Status: subscription.InvoiceFailure, RawPayload: []byte(`{"a":2}`),
		})
		require.NoError(t, err)
		assert.False(t, ok, "terminal invoice must not be overwritten")

		// a second invoice for the same reference cannot also become terminal
		ok, err = s.RecordInvoiceCallback(ctx, subscription.InvoiceCallback{
			InvoiceID: "inv-2", Reference: "order-1", Amount: 50000, Currency: 980,
			Status: subscription.InvoiceSuccess,
		})
		require.NoError(t, err)
		assert.False(t, ok)

		inv, err := s.GetInvoiceByReference(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, "inv-1", inv.InvoiceID)
		assert.Equal(t, subscription.InvoiceSuccess, inv.Status)
		assert.JSONEq(t, `{"a":1}`, string(inv.RawCallbackPayload))

		_, err = s.GetInvoiceByReference(ctx, "order-unknown")
		assert.ErrorIs(t, err, subscription.ErrInvoiceNotFound)
	})

	t.Run("rejected invoice callback keeps the transaction usable", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)
		seedRequest(t, s, "order-1")
		require.NoError(t, s.SaveInvoice(ctx, &subscription.PaymentInvoice{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 50000, Currency: 980,
		}))
		ok, err := s.RecordInvoiceCallback(ctx, subscription.InvoiceCallback{
			InvoiceID: "inv-1", Reference: "order-1", Amount: 50000, Currency: 980, Status: subscription.InvoiceExpired,
		})
		require.NoError(t, err)
		require.True(t, ok)

		err = s.WithinTx(ctx, func(tx subscription.Store) error {
			ok, err := tx.RecordInvoiceCallback(ctx, subscription.InvoiceCallback{
				InvoiceID: "inv-2", Reference: "order-1", Amount: 50000, Currency: 980, Status: subscription.InvoiceSuccess,
			})
			if err != nil {
				return err
			}
			assert.False(t, ok)
			return tx.AppendNote(ctx, "order-1", subscription.Note{Actor: "webhook", Text: "second invoice ignored"})
		})
		require.NoError(t, err)

		req, err := s.GetRequest(ctx, "order-1")
		require.NoError(t, err)
		assert.Contains(t, req.AdminNotes, "second invoice ignored")
	})

	t.Run("list requests", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		s := open(t)

		for i, id := range []string{"a", "b", "c", "d"} {
			require.NoError(t, s.CreateRequest(ctx, &subscription.SubscriptionRequest{
				ID: id, Email: id + "@example.com", Name: id, Plan: "basic", CreatedAt: base.Add(time.Duration(i) * time.Hour),
			}))
		}
		_, err := s.MarkFailed(ctx, "b", subscription.Note{Actor: "webhook"})
		require.NoError(t, err)

		pending, err := s.ListRequests(ctx, subscription.ListFilter{Status: subscription.RequestPending})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, ids(pending))

		stale, err := s.ListRequests(ctx, subscription.ListFilter{
			Status: subscription.RequestPending, OlderThan: base.Add(150 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(stale))

		page, err := s.ListRequests(ctx, subscription.ListFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(page))

		empty, err := s.ListRequests(ctx, subscription.ListFilter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent renewals of one account all count", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := open(t)

		u, err := s.CreateUser(ctx, &subscription.UserAccount{Email: "reader@example.com", Name: "Reader"})
		require.NoError(t, err)
		start := contractNow.AddDate(0, 0, -20)
		end := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpdateUserSubscription(ctx, u.ID, subscription.SubscriptionUpdate{
			Plan: "standard", Start: start, End: end, MaxItems: 3, Status: subscription.UserActive,
		}))

		const renewals = 4
		for i := range renewals {
			seedRequest(t, s, fmt.Sprintf("renew-%d", i))
		}
		plan := subscription.Plan{ID: "standard", MaxItems: 3, DurationMonths: 1}

		var wg sync.WaitGroup
		for i := range renewals {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.WithinTx(ctx, func(tx subscription.Store) error {
					ok, err := tx.MarkCompleted(ctx, fmt.Sprintf("renew-%d", i), subscription.Note{Actor: "webhook"})
					if err != nil || !ok {
						return errors.Join(errors.New("request not completed"), err)
					}
					current, err := tx.FindUserByEmail(ctx, "reader@example.com")
					if err != nil {
						return err
					}
					from, to := subscription.Renew(contractNow, current, plan)
					return tx.UpdateUserSubscription(ctx, current.ID, subscription.SubscriptionUpdate{
						Plan: plan.ID, Start: from, End: to, MaxItems: plan.MaxItems, Status: subscription.UserActive,
					})
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.FindUserByEmail(ctx, "reader@example.com")
		require.NoError(t, err)
		require.NotNil(t, got.SubscriptionEnd)
		sameInstant(t, end.AddDate(0, renewals, 0), *got.SubscriptionEnd, "every renewal extends the end date")
		require.NotNil(t, got.SubscriptionStart)
		sameInstant(t, start, *got.SubscriptionStart)
	})
}

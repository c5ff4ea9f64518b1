package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/notify"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/svc/billing"
)

const testSecret = "webhook-secret"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// counters is shared by a countingStore and every transaction view it hands out.
type counters struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn map[string]error
}

func (c *counters) hit(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	return c.failOn[op]
}

func (c *counters) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *counters) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *counters) fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failOn, op)
		return
	}
	c.failOn[op] = err
}

// countingStore counts every mutating call, including calls made inside
// WithinTx, and can inject failures per operation.
type countingStore struct {
	subscription.Store
	c *counters
}

func newCountingStore(inner subscription.Store) *countingStore {
	return &countingStore{Store: inner, c: &counters{calls: map[string]int{}, failOn: map[string]error{}}}
}

func (s *countingStore) CreateRequest(ctx context.Context, req *subscription.SubscriptionRequest) error {
	if err := s.c.hit("CreateRequest"); err != nil {
		return err
	}
	return s.Store.CreateRequest(ctx, req)
}

func (s *countingStore) MarkCompleted(ctx context.Context, id string, n subscription.Note) (bool, error) {
	if err := s.c.hit("MarkCompleted"); err != nil {
		return false, err
	}
	return s.Store.MarkCompleted(ctx, id, n)
}

func (s *countingStore) MarkFailed(ctx context.Context, id string, n subscription.Note) (bool, error) {
	if err := s.c.hit("MarkFailed"); err != nil {
		return false, err
	}
	return s.Store.MarkFailed(ctx, id, n)
}

func (s *countingStore) MarkCancelled(ctx context.Context, id string, n subscription.Note) (bool, error) {
	if err := s.c.hit("MarkCancelled"); err != nil {
		return false, err
	}
	return s.Store.MarkCancelled(ctx, id, n)
}

func (s *countingStore) AppendNote(ctx context.Context, id string, n subscription.Note) error {
	if err := s.c.hit("AppendNote"); err != nil {
		return err
	}
	return s.Store.AppendNote(ctx, id, n)
}

func (s *countingStore) CreateUser(ctx context.Context, u *subscription.UserAccount) (*subscription.UserAccount, error) {
	if err := s.c.hit("CreateUser"); err != nil {
		return nil, err
	}
	return s.Store.CreateUser(ctx, u)
}

func (s *countingStore) UpdateUserSubscription(ctx context.Context, id uuid.UUID, upd subscription.SubscriptionUpdate) error {
	if err := s.c.hit("UpdateUserSubscription"); err != nil {
		return err
	}
	return s.Store.UpdateUserSubscription(ctx, id, upd)
}

func (s *countingStore) SaveInvoice(ctx context.Context, inv *subscription.PaymentInvoice) error {
	if err := s.c.hit("SaveInvoice"); err != nil {
		return err
	}
	return s.Store.SaveInvoice(ctx, inv)
}

func (s *countingStore) RecordInvoiceCallback(ctx context.Context, cb subscription.InvoiceCallback) (bool, error) {
	if err := s.c.hit("RecordInvoiceCallback"); err != nil {
		return false, err
	}
	return s.Store.RecordInvoiceCallback(ctx, cb)
}

func (s *countingStore) WithinTx(ctx context.Context, fn func(tx subscription.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx subscription.Store) error {
		return fn(&countingStore{Store: tx, c: s.c})
	})
}

// fakeGateway stands in for the acquiring API.
type fakeGateway struct {
	mu        sync.Mutex
	created   []gateway.InvoiceParams
	createErr []error
	statuses  map[string]*gateway.InvoiceStatus
	statusErr error
	checks    int
}

func (g *fakeGateway) CreateInvoice(_ context.Context, p gateway.InvoiceParams) (*gateway.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, p)
	if len(g.createErr) > 0 {
		err := g.createErr[0]
		g.createErr = g.createErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return &gateway.Invoice{InvoiceID: "inv-" + p.Reference, PageURL: "https://pay.example.com/inv-" + p.Reference}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, invoiceID string) (*gateway.InvoiceStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	st, ok := g.statuses[invoiceID]
	if !ok {
		return nil, &gateway.GatewayError{StatusCode: 404}
	}
	cp := *st
	return &cp, nil
}

// recordingDispatcher captures queued notifications.
type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return d.err
}

func (d *recordingDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.msgs...)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveCallback(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type fixture struct {
	mem      *subscription.MemoryStore
	store    *countingStore
	catalog  *subscription.Catalog
	gw       *fakeGateway
	notify   *recordingDispatcher
	orch     *billing.Orchestrator
	proc     *billing.Processor
	observer *recordingObserver
}

func newFixture(t *testing.T, procOpts ...billing.ProcessorOption) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	mem := subscription.NewMemoryStore(subscription.WithClock(clock))
	f := &fixture{
		mem:      mem,
		store:    newCountingStore(mem),
		catalog:  subscription.NewCatalog(subscription.StaticSource(subscription.DefaultPlans()), time.Minute),
		gw:       &fakeGateway{statuses: map[string]*gateway.InvoiceStatus{}},
		notify:   &recordingDispatcher{},
		observer: &recordingObserver{},
	}
	f.orch = billing.NewOrchestrator(f.store, f.catalog, f.gw,
		billing.WithLogger(logger.Discard()),
		billing.WithDispatcher(f.notify),
		billing.WithClock(clock),
		billing.WithRetry(gateway.Constant(time.Millisecond), 3),
	)
	opts := append([]billing.ProcessorOption{
		billing.WithProcessorLogger(logger.Discard()),
		billing.WithProcessorClock(clock),
		billing.WithCallbackObserver(f.observer),
	}, procOpts...)
	f.proc = billing.NewProcessor(f.store, f.orch, testSecret, opts...)
	return f
}

// seed stores a pending request with its invoice, bypassing the counters.
func (f *fixture) seed(t *testing.T, ref, email, plan string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mem.CreateRequest(ctx, &subscription.SubscriptionRequest{
		ID:        ref,
		Email:     email,
		Name:      "Reader",
		Plan:      plan,
		CreatedAt: createdAt,
	}))
	require.NoError(t, f.mem.SaveInvoice(ctx, &subscription.PaymentInvoice{
		InvoiceID: "inv-" + ref,
		Reference: ref,
		Amount:    50000,
		Currency:  980,
		Status:    subscription.InvoiceCreated,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}))
}

func (f *fixture) request(t *testing.T, ref string) *subscription.SubscriptionRequest {
	t.Helper()
	req, err := f.mem.GetRequest(context.Background(), ref)
	require.NoError(t, err)
	return req
}

func callbackBody(t *testing.T, ref string, status gateway.Status, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"invoiceId":    "inv-" + ref,
		"status":       status,
		"amount":       amount,
		"ccy":          980,
		"reference":    ref,
		"createdDate":  testNow.Add(-time.Minute).Unix(),
		"modifiedDate": testNow.Unix(),
	})
	require.NoError(t, err)
	return body
}

func sign(body []byte) string {
	return gateway.Sign(body, testSecret)
}

var errBoom = errors.New("boom")

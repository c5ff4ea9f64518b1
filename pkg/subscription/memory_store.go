package subscription

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. A single mutex serializes all
// operations, so transitions are trivially atomic; WithinTx holds the mutex
// for the whole callback and restores a snapshot when it fails.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	opts  storeOptions
}

type memState struct {
	requests map[string]SubscriptionRequest
	invoices map[string]PaymentInvoice
	users    map[uuid.UUID]UserAccount
	emails   map[string]uuid.UUID
}

func (s memState) clone() memState {
	return memState{
		requests: maps.Clone(s.requests),
		invoices: maps.Clone(s.invoices),
		users:    maps.Clone(s.users),
		emails:   maps.Clone(s.emails),
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	return &MemoryStore{
		state: memState{
			requests: make(map[string]SubscriptionRequest),
			invoices: make(map[string]PaymentInvoice),
			users:    make(map[uuid.UUID]UserAccount),
			emails:   make(map[string]uuid.UUID),
		},
		opts: newStoreOptions(opts),
	}
}

func (s *MemoryStore) locked(fn func(v *memView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memView{st: &s.state, now: s.opts.now})
}

func (s *MemoryStore) GetRequest(ctx context.Context, id string) (req *SubscriptionRequest, err error) {
	err = s.locked(func(v *memView) error {
		req, err = v.GetRequest(ctx, id)
		return err
	})
	return req, err
}

func (s *MemoryStore) CreateRequest(ctx context.Context, req *SubscriptionRequest) error {
	return s.locked(func(v *memView) error { return v.CreateRequest(ctx, req) })
}

func (s *MemoryStore) ListRequests(ctx context.Context, filter ListFilter) (out []SubscriptionRequest, err error) {
	err = s.locked(func(v *memView) error {
		out, err = v.ListRequests(ctx, filter)
		return err
	})
	return out, err
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, id string, note Note) (ok bool, err error) {
	err = s.locked(func(v *memView) error {
		ok, err = v.MarkCompleted(ctx, id, note)
		return err
	})
	return ok, err
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, note Note) (ok bool, err error) {
	err = s.locked(func(v *memView) error {
		ok, err = v.MarkFailed(ctx, id, note)
		return err
	})
	return ok, err
}

func (s *MemoryStore) MarkCancelled(ctx context.Context, id string, note Note) (ok bool, err error) {
	err = s.locked(func(v *memView) error {
		ok, err = v.MarkCancelled(ctx, id, note)
		return err
	})
	return ok, err
}

func (s *MemoryStore) AppendNote(ctx context.Context, id string, note Note) error {
	return s.locked(func(v *memView) error { return v.AppendNote(ctx, id, note) })
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (u *UserAccount, err error) {
	err = s.locked(func(v *memView) error {
		u, err = v.FindUserByEmail(ctx, email)
		return err
	})
	return u, err
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *UserAccount) (u *UserAccount, err error) {
	err = s.locked(func(v *memView) error {
		u, err = v.CreateUser(ctx, user)
		return err
	})
	return u, err
}

func (s *MemoryStore) UpdateUserSubscription(ctx context.Context, userID uuid.UUID, upd SubscriptionUpdate) error {
	return s.locked(func(v *memView) error { return v.UpdateUserSubscription(ctx, userID, upd) })
}

func (s *MemoryStore) SaveInvoice(ctx context.Context, inv *PaymentInvoice) error {
	return s.locked(func(v *memView) error { return v.SaveInvoice(ctx, inv) })
}

func (s *MemoryStore) RecordInvoiceCallback(ctx context.Context, cb InvoiceCallback) (ok bool, err error) {
	err = s.locked(func(v *memView) error {
		ok, err = v.RecordInvoiceCallback(ctx, cb)
		return err
	})
	return ok, err
}

func (s *MemoryStore) GetInvoiceByReference(ctx context.Context, reference string) (inv *PaymentInvoice, err error) {
	err = s.locked(func(v *memView) error {
		inv, err = v.GetInvoiceByReference(ctx, reference)
		return err
	})
	return inv, err
}

// WithinTx runs fn while holding the store mutex. Nested calls on the tx
// store run inline.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memView{st: &s.state, now: s.opts.now}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// memView implements Store over state the caller has already locked.
type memView struct {
	st  *memState
	now Clock
}

func (v *memView) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(v)
}

func (v *memView) GetRequest(_ context.Context, id string) (*SubscriptionRequest, error) {
	req, ok := v.st.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (v *memView) CreateRequest(_ context.Context, req *SubscriptionRequest) error {
	if req == nil || req.ID == "" {
		return ErrInvalidRequest
	}
	if _, ok := v.st.requests[req.ID]; ok {
		return ErrRequestExists
	}
	r := *req
	r.Email = NormalizeEmail(r.Email)
	if r.Status == "" {
		r.Status = RequestPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = v.now().UTC()
	}
	v.st.requests[r.ID] = r
	*req = r
	return nil
}

func (v *memView) ListRequests(_ context.Context, f ListFilter) ([]SubscriptionRequest, error) {
	all := make([]SubscriptionRequest, 0, len(v.st.requests))
	for _, r := range v.st.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.OlderThan.IsZero() && !r.CreatedAt.Before(f.OlderThan) {
			continue
		}
		all = append(all, r)
	}
	slices.SortFunc(all, func(a, b SubscriptionRequest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Offset >= len(all) {
		return []SubscriptionRequest{}, nil
	}
	all = all[max(f.Offset, 0):]
	return all[:min(len(all), f.limit())], nil
}

func (v *memView) transition(id string, to RequestStatus, note Note) (bool, error) {
	req, ok := v.st.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	apply, err := checkTransition(req.Status, to)
	if !apply {
		return false, err
	}
	now := v.now().UTC()
	req.Status = to
	req.ProcessedAt = &now
	req.AdminNotes = appendNote(req.AdminNotes, note, now)
	v.st.requests[id] = req
	return true, nil
}

func (v *memView) MarkCompleted(_ context.Context, id string, note Note) (bool, error) {
	return v.transition(id, RequestCompleted, note)
}

func (v *memView) MarkFailed(_ context.Context, id string, note Note) (bool, error) {
	return v.transition(id, RequestFailed, note)
}

func (v *memView) MarkCancelled(_ context.Context, id string, note Note) (bool, error) {
	return v.transition(id, RequestCancelled, note)
}

func (v *memView) AppendNote(_ context.Context, id string, note Note) error {
	req, ok := v.st.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.AdminNotes = appendNote(req.AdminNotes, note, v.now())
	v.st.requests[id] = req
	return nil
}

func (v *memView) FindUserByEmail(_ context.Context, email string) (*UserAccount, error) {
	id, ok := v.st.emails[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := v.st.users[id]
	return &u, nil
}

func (v *memView) CreateUser(_ context.Context, user *UserAccount) (*UserAccount, error) {
	if user == nil || NormalizeEmail(user.Email) == "" {
		return nil, ErrInvalidRequest
	}
	u := *user
	u.Email = NormalizeEmail(u.Email)
	if _, ok := v.st.emails[u.Email]; ok {
		return nil, ErrUserExists
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UserPending
	}
	now := v.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	v.st.users[u.ID] = u
	v.st.emails[u.Email] = u.ID
	return &u, nil
}

func (v *memView) UpdateUserSubscription(_ context.Context, userID uuid.UUID, upd SubscriptionUpdate) error {
	u, ok := v.st.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	start, end := upd.Start.UTC(), upd.End.UTC()
	u.SubscriptionType = upd.Plan
	u.SubscriptionStart = &start
	u.SubscriptionEnd = &end
	u.MaxItems = upd.MaxItems
	u.Status = upd.Status
	u.UpdatedAt = v.now().UTC()
	v.st.users[userID] = u
	return nil
}

func (v *memView) SaveInvoice(_ context.Context, inv *PaymentInvoice) error {
	if inv == nil || inv.InvoiceID == "" {
		return ErrInvalidRequest
	}
	if _, ok := v.st.invoices[inv.InvoiceID]; ok {
		return ErrInvoiceExists
	}
	i := *inv
	if i.Status == "" {
		i.Status = InvoiceCreated
	}
	now := v.now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	v.st.invoices[i.InvoiceID] = i
	*inv = i
	return nil
}

func (v *memView) RecordInvoiceCallback(_ context.Context, cb InvoiceCallback) (bool, error) {
	if cb.InvoiceID == "" {
		return false, ErrInvalidRequest
	}
	now := v.now().UTC()
	inv, ok := v.st.invoices[cb.InvoiceID]
	if !ok {
		inv = PaymentInvoice{
			InvoiceID: cb.InvoiceID,
			Reference: cb.Reference,
			Amount:    cb.Amount,
			Currency:  cb.Currency,
			CreatedAt: now,
		}
	} else if inv.Status.Terminal() {
		return false, nil
	}
	if cb.Status.Terminal() {
		for _, other := range v.st.invoices {
			if other.Reference == inv.Reference && other.InvoiceID != inv.InvoiceID && other.Status.Terminal() {
				return false, nil
			}
		}
	}
	inv.Status = cb.Status
	inv.RawCallbackPayload = bytes.Clone(cb.RawPayload)
	inv.UpdatedAt = now
	v.st.invoices[inv.InvoiceID] = inv
	return true, nil
}

// GetInvoiceByReference returns the most recently created invoice for reference.
func (v *memView) GetInvoiceByReference(_ context.Context, reference string) (*PaymentInvoice, error) {
	var found *PaymentInvoice
	for _, inv := range v.st.invoices {
		if inv.Reference != reference {
			continue
		}
		if found == nil || inv.CreatedAt.After(found.CreatedAt) {
			i := inv
			found = &i
		}
	}
	if found == nil {
		return nil, ErrInvoiceNotFound
	}
	return found, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memView)(nil)
)

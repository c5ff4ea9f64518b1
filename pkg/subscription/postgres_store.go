package subscription

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/bookrent/pkg/pg"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Store backed by PostgreSQL through pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
	opts storeOptions
}

// NewPostgresStore wraps an open pool. It panics on a nil pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) *PostgresStore {
	if pool == nil {
		panic("subscription: nil postgres pool")
	}
	return &PostgresStore{pool: pool, db: pool, opts: newStoreOptions(opts)}
}

// EnsureSchema creates the store tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return storeErr("ensure schema", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return errors.Join(ErrStore, fmt.Errorf("%s: %w", op, err))
}

// WithinTx opens a transaction on the pool. Called on a transactional store
// it runs fn inside the existing transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if _, nested := s.db.(pgx.Tx); nested {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&PostgresStore{pool: s.pool, db: tx, opts: s.opts}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit tx", err)
	}
	return nil
}

const requestColumns = `id, email, name, phone, plan, status, created_at, processed_at, admin_notes`

func scanRequest(row pgx.Row) (*SubscriptionRequest, error) {
	var r SubscriptionRequest
	if err := row.Scan(&r.ID, &r.Email, &r.Name, &r.Phone, &r.Plan, &r.Status, &r.CreatedAt, &r.ProcessedAt, &r.AdminNotes); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*SubscriptionRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM subscription_requests WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRequestNotFound
		}
		return nil, storeErr("get request", err)
	}
	return r, nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req *SubscriptionRequest) error {
	if req == nil || req.ID == "" {
		return ErrInvalidRequest
	}
	if req.Status == "" {
		req.Status = RequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.opts.now().UTC()
	}
	req.Email = NormalizeEmail(req.Email)

	_, err := s.db.Exec(ctx, `
		INSERT INTO subscription_requests (id, email, name, phone, plan, status, created_at, admin_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.Email, req.Name, req.Phone, req.Plan, req.Status, req.CreatedAt, req.AdminNotes)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrRequestExists
		}
		return storeErr("create request", err)
	}
	return nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, f ListFilter) ([]SubscriptionRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.OlderThan.IsZero() {
		args = append(args, f.OlderThan)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	q := `SELECT ` + requestColumns + ` FROM subscription_requests`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit(), max(f.Offset, 0))
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, storeErr("list requests", err)
	}
	defer rows.Close()

	out := []SubscriptionRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, storeErr("scan request", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list requests", err)
	}
	return out, nil
}

// transition is the compare-and-set on status. When no row matches, the
// current status decides between a duplicate and an invalid transition.
func (s *PostgresStore) transition(ctx context.Context, id string, to RequestStatus, note Note) (bool, error) {
	now := s.opts.now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE subscription_requests
		SET status = $2,
		    processed_at = $3,
		    admin_notes = CASE WHEN admin_notes = '' THEN $4 ELSE admin_notes || E'\n' || $4 END
		WHERE id = $1 AND status = 'pending'`,
		id, to, now, note.Format(now))
	if err != nil {
		return false, storeErr("transition request", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var current RequestStatus
	if err := s.db.QueryRow(ctx, `SELECT status FROM subscription_requests WHERE id = $1`, id).Scan(&current); err != nil {
		if pg.IsNotFoundError(err) {
			return false, ErrRequestNotFound
		}
		return false, storeErr("read request status", err)
	}
	return checkTransition(current, to)
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, note Note) (bool, error) {
	return s.transition(ctx, id, RequestCompleted, note)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, note Note) (bool, error) {
	return s.transition(ctx, id, RequestFailed, note)
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, id string, note Note) (bool, error) {
	return s.transition(ctx, id, RequestCancelled, note)
}

func (s *PostgresStore) AppendNote(ctx context.Context, id string, note Note) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscription_requests
		SET admin_notes = CASE WHEN admin_notes = '' THEN $2 ELSE admin_notes || E'\n' || $2 END
		WHERE id = $1`,
		id, note.Format(s.opts.now()))
	if err != nil {
		return storeErr("append note", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

const userColumns = `id, email, name, phone, subscription_type, subscription_start, subscription_end, max_items, status, created_at, updated_at`

func scanUser(row pgx.Row) (*UserAccount, error) {
	var u UserAccount
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.SubscriptionType,
		&u.SubscriptionStart, &u.SubscriptionEnd, &u.MaxItems, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail locks the row FOR UPDATE when called inside WithinTx, so
// concurrent renewals of one account read each other's end date.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*UserAccount, error) {
	q := `SELECT ` + userColumns + ` FROM user_accounts WHERE email = $1`
	if _, inTx := s.db.(pgx.Tx); inTx {
		q += ` FOR UPDATE`
	}
	u, err := scanUser(s.db.QueryRow(ctx, q, NormalizeEmail(email)))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("find user", err)
	}
	return u, nil
}

// CreateUser inserts with ON CONFLICT DO NOTHING so a concurrent insert of
// the same email does not abort the surrounding transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, user *UserAccount) (*UserAccount, error) {
	if user == nil || NormalizeEmail(user.Email) == "" {
		return nil, ErrInvalidRequest
	}
	u := *user
	u.Email = NormalizeEmail(u.Email)
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UserPending
	}
	now := s.opts.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	created, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO user_accounts (id, email, name, phone, subscription_type, subscription_start, subscription_end, max_items, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+userColumns,
		u.ID, u.Email, u.Name, u.Phone, u.SubscriptionType, u.SubscriptionStart, u.SubscriptionEnd,
		u.MaxItems, u.Status, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		if pg.IsNotFoundError(err) || pg.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, storeErr("create user", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateUserSubscription(ctx context.Context, userID uuid.UUID, upd SubscriptionUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_accounts
		SET subscription_type = $2, subscription_start = $3, subscription_end = $4,
		    max_items = $5, status = $6, updated_at = $7
		WHERE id = $1`,
		userID, upd.Plan, upd.Start.UTC(), upd.End.UTC(), upd.MaxItems, upd.Status, s.opts.now().UTC())
	if err != nil {
		return storeErr("update user subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *PaymentInvoice) error {
	if inv == nil || inv.InvoiceID == "" {
		return ErrInvalidRequest
	}
	if inv.Status == "" {
		inv.Status = InvoiceCreated
	}
	now := s.opts.now().UTC()
	inv.CreatedAt, inv.UpdatedAt = now, now
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_invoices (invoice_id, reference, amount, currency, status, page_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.InvoiceID, inv.Reference, inv.Amount, inv.Currency, inv.Status, inv.PageURL, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrInvoiceExists
		}
		return storeErr("save invoice", err)
	}
	return nil
}

// RecordInvoiceCallback upserts the invoice. The conditional DO UPDATE keeps
// terminal invoices untouched; the partial unique index rejects a second
// terminal invoice for the same reference, which is reported as not applied.
func (s *PostgresStore) RecordInvoiceCallback(ctx context.Context, cb InvoiceCallback) (bool, error) {
	if cb.InvoiceID == "" {
		return false, ErrInvalidRequest
	}
	// Inside a transaction a unique violation would abort the whole unit,
	// so the upsert runs under a savepoint.
	now := s.opts.now().UTC()
	if tx, ok := s.db.(pgx.Tx); ok {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return false, storeErr("savepoint", err)
		}
		defer func() { _ = sp.Rollback(context.WithoutCancel(ctx)) }()
		applied, err := recordCallback(ctx, sp, cb, now)
		if err != nil || !applied {
			return false, err
		}
		if err := sp.Commit(ctx); err != nil {
			return false, storeErr("release savepoint", err)
		}
		return applied, nil
	}
	return recordCallback(ctx, s.db, cb, now)
}

func recordCallback(ctx context.Context, db querier, cb InvoiceCallback, now time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO payment_invoices AS p (invoice_id, reference, amount, currency, status, raw_callback_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (invoice_id) DO UPDATE
		SET status = EXCLUDED.status,
		    raw_callback_payload = EXCLUDED.raw_callback_payload,
		    updated_at = EXCLUDED.updated_at
		WHERE p.status = 'created'`,
		cb.InvoiceID, cb.Reference, cb.Amount, cb.Currency, cb.Status, cb.RawPayload, now)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, storeErr("record invoice callback", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetInvoiceByReference(ctx context.Context, reference string) (*PaymentInvoice, error) {
	var inv PaymentInvoice
	err := s.db.QueryRow(ctx, `
		SELECT invoice_id, reference, amount, currency, status, page_url, raw_callback_payload, created_at, updated_at
		FROM payment_invoices WHERE reference = $1
		ORDER BY created_at DESC LIMIT 1`, reference).
		Scan(&inv.InvoiceID, &inv.Reference, &inv.Amount, &inv.Currency, &inv.Status,
			&inv.PageURL, &inv.RawCallbackPayload, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, storeErr("get invoice", err)
	}
	return &inv, nil
}

var _ Store = (*PostgresStore)(nil)

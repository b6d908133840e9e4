package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/sentinel"
	txctx "soulcert/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// ledgerLockKey is the advisory lock that serializes ledger transactions.
const ledgerLockKey int64 = 0x50_4C_43_45_52_54

const defaultTxTimeout = 5 * time.Second

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// PostgresStore persists the ledger in PostgreSQL. Every transaction takes a
// transaction-scoped advisory lock, so writers are serialized across all
// replicas sharing the database.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

type PostgresOption func(*PostgresStore)

// WithTxTimeout bounds each transaction. Zero or negative keeps the default.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn under the ledger lock and commits on success. When ctx
// carries a transaction from txctx.WithTx, fn joins it and the caller keeps
// ownership of commit and rollback.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ledger Ledger) error) (err error) {
	if outer, ok := txctx.From(ctx); ok {
		if _, err := outer.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
			return wrapTxErr(ctx, err, "failed to acquire ledger lock")
		}
		return fn(&postgresTx{tx: outer})
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to begin ledger transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(txCtx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return wrapTxErr(txCtx, err, "failed to acquire ledger lock")
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapTxErr(txCtx, err, "failed to commit ledger transaction")
	}
	committed = true
	return nil
}

// Durable is true: the ledger and its record ID counter live in Postgres.
func (s *PostgresStore) Durable() bool {
	return true
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func wrapTxErr(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) AppendOffer(ctx context.Context, recipient id.PrincipalID, offer models.Offer) (int, error) {
	slot, err := t.CountOffers(ctx, recipient)
	if err != nil {
		return 0, err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO offers (recipient, slot, issuer, metadata_ref, policy)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(recipient), slot, uuid.UUID(offer.Issuer), offer.MetadataRef, int16(offer.Policy))
	if err != nil {
		return 0, fmt.Errorf("insert offer: %w", err)
	}
	return slot, nil
}

func (t *postgresTx) CountOffers(ctx context.Context, recipient id.PrincipalID) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE recipient = $1`, uuid.UUID(recipient)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count offers: %w", err)
	}
	return n, nil
}

func (t *postgresTx) OfferAt(ctx context.Context, recipient id.PrincipalID, index int) (models.Offer, error) {
	if index < 0 {
		return models.Offer{}, sentinel.ErrOutOfRange
	}
	offer, err := scanOffer(t.tx.QueryRowContext(ctx, `
		SELECT issuer, metadata_ref, policy FROM offers WHERE recipient = $1 AND slot = $2
	`, uuid.UUID(recipient), index))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, sentinel.ErrOutOfRange
	}
	if err != nil {
		return models.Offer{}, fmt.Errorf("find offer: %w", err)
	}
	return offer, nil
}

func (t *postgresTx) ListOffers(ctx context.Context, recipient id.PrincipalID) ([]models.Offer, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT issuer, metadata_ref, policy FROM offers WHERE recipient = $1 ORDER BY slot
	`, uuid.UUID(recipient))
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	out := []models.Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return out, nil
}

func (t *postgresTx) SwapRemoveOffer(ctx context.Context, recipient id.PrincipalID, index int) (models.Offer, error) {
	removed, err := t.OfferAt(ctx, recipient, index)
	if err != nil {
		return models.Offer{}, err
	}
	count, err := t.CountOffers(ctx, recipient)
	if err != nil {
		return models.Offer{}, err
	}
	last := count - 1
	if index != last {
		_, err = t.tx.ExecContext(ctx, `
			UPDATE offers AS dst
			SET issuer = src.issuer, metadata_ref = src.metadata_ref, policy = src.policy
			FROM offers AS src
			WHERE dst.recipient = $1 AND dst.slot = $2
			  AND src.recipient = $1 AND src.slot = $3
		`, uuid.UUID(recipient), index, last)
		if err != nil {
			return models.Offer{}, fmt.Errorf("move last offer: %w", err)
		}
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM offers WHERE recipient = $1 AND slot = $2`, uuid.UUID(recipient), last); err != nil {
		return models.Offer{}, fmt.Errorf("delete offer slot: %w", err)
	}
	return removed, nil
}

func (t *postgresTx) AllocateRecordID(ctx context.Context) (id.RecordID, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE ledger_counters SET next_value = next_value + 1
		WHERE name = 'record_id'
		RETURNING next_value - 1
	`).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, dErrors.New(dErrors.CodeInternal, "record id counter missing; run migrations")
	}
	if err != nil {
		return 0, fmt.Errorf("allocate record id: %w", err)
	}
	return id.RecordID(next), nil
}

func (t *postgresTx) InsertRecord(ctx context.Context, rec *models.Record) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO records (id, issuer, metadata_ref, policy, minted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(rec.ID()), uuid.UUID(rec.Issuer()), rec.MetadataRef(), int16(rec.Policy()), rec.MintedAt())
	if isUniqueViolation(err) {
		return sentinel.ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (t *postgresTx) FindRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	rec, err := scanRecord(t.tx.QueryRowContext(ctx, `
		SELECT id, issuer, metadata_ref, policy, minted_at FROM records WHERE id = $1
	`, int64(recordID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return rec, nil
}

func (t *postgresTx) FindRecords(ctx context.Context, recordIDs []id.RecordID) ([]*models.Record, error) {
	if len(recordIDs) == 0 {
		return []*models.Record{}, nil
	}
	keys := make([]int64, len(recordIDs))
	for i, rid := range recordIDs {
		keys[i] = int64(rid)
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, issuer, metadata_ref, policy, minted_at FROM records
		WHERE id = ANY($1::bigint[]) ORDER BY id
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0, len(recordIDs))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (t *postgresTx) DeleteRecord(ctx context.Context, recordID id.RecordID) error {
	var held bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ownership WHERE record_id = $1)`, int64(recordID)).Scan(&held); err != nil {
		return fmt.Errorf("check ownership: %w", err)
	}
	if held {
		return sentinel.ErrInvalidState
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, int64(recordID))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (t *postgresTx) Holder(ctx context.Context, recordID id.RecordID) (id.PrincipalID, error) {
	var holder uuid.UUID
	err := t.tx.QueryRowContext(ctx, `SELECT holder FROM ownership WHERE record_id = $1`, int64(recordID)).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return id.PrincipalID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.PrincipalID{}, fmt.Errorf("find holder: %w", err)
	}
	return id.PrincipalID(holder), nil
}

func (t *postgresTx) SetHolder(ctx context.Context, recordID id.RecordID, holder id.PrincipalID) error {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM records WHERE id = $1)`, int64(recordID)).Scan(&exists); err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}

	current, err := t.Holder(ctx, recordID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if err := models.CheckHolderTransition(current, holder); err != nil {
		return err
	}

	if holder.IsNil() {
		_, err = t.tx.ExecContext(ctx, `DELETE FROM ownership WHERE record_id = $1`, int64(recordID))
	} else {
		_, err = t.tx.ExecContext(ctx, `INSERT INTO ownership (record_id, holder) VALUES ($1, $2)`, int64(recordID), uuid.UUID(holder))
	}
	if err != nil {
		return fmt.Errorf("set holder: %w", err)
	}
	return nil
}

func (t *postgresTx) ListByHolder(ctx context.Context, holder id.PrincipalID) ([]id.RecordID, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT record_id FROM ownership WHERE holder = $1 ORDER BY record_id
	`, uuid.UUID(holder))
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	out := []id.RecordID{}
	for rows.Next() {
		var rid int64
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, id.RecordID(rid))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (models.Offer, error) {
	var (
		issuer uuid.UUID
		ref    string
		policy int16
	)
	if err := row.Scan(&issuer, &ref, &policy); err != nil {
		return models.Offer{}, err
	}
	return models.Offer{
		Issuer:      id.PrincipalID(issuer),
		MetadataRef: ref,
		Policy:      models.BurnPolicy(policy),
	}, nil
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rid      int64
		issuer   uuid.UUID
		ref      string
		policy   int16
		mintedAt time.Time
	)
	if err := row.Scan(&rid, &issuer, &ref, &policy, &mintedAt); err != nil {
		return nil, err
	}
	return models.NewRecordBuilder().
		WithID(id.RecordID(rid)).
		WithIssuer(id.PrincipalID(issuer)).
		WithMetadataRef(ref).
		WithPolicy(models.BurnPolicy(policy)).
		WithMintedAt(mintedAt).
		Build()
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

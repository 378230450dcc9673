package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// SQLLedger implements Ledger over database/sql, portable across the
// sqlite (modernc.org/sqlite, single-node) and postgres (lib/pq,
// multi-node) drivers registered in factory.go.
type SQLLedger struct {
	db *sql.DB
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	available BIGINT NOT NULL DEFAULT 0,
	locked BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS escrows (
	id TEXT PRIMARY KEY,
	from_account TEXT NOT NULL,
	to_account TEXT NOT NULL,
	amount BIGINT NOT NULL,
	task_id TEXT,
	state TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP,
	resolved_at TIMESTAMP
);
`

func (s *SQLLedger) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("ledger: init schema: %w", err)
	}
	return nil
}

func (s *SQLLedger) CreateAccount(ctx context.Context, id string) (Account, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, available, locked, updated_at) VALUES ($1, 0, 0, $2)`,
		id, now)
	if err != nil {
		return Account{}, fmt.Errorf("ledger: create account %s: %w", id, err)
	}
	return Account{ID: id, UpdatedAt: now}, nil
}

func (s *SQLLedger) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, available, locked, updated_at FROM accounts WHERE id = $1`, id)
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Available, &acc.Locked, &acc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("ledger: get account %s: %w", id, err)
	}
	return acc, nil
}

func (s *SQLLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: transfer amount must be positive, got %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET available = available - $1, updated_at = $2 WHERE id = $3 AND available >= $1`,
		amount, now, from)
	if err != nil {
		return fmt.Errorf("ledger: debit %s: %w", from, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: check debit rows: %w", err)
	}
	if rows == 0 {
		return swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET available = available + $1, updated_at = $2 WHERE id = $3`,
		amount, now, to); err != nil {
		return fmt.Errorf("ledger: credit %s: %w", to, err)
	}

	return tx.Commit()
}

func (s *SQLLedger) CreateEscrow(ctx context.Context, id, from, to string, amount int64, taskID string, ttl time.Duration) (Escrow, error) {
	if amount <= 0 {
		return Escrow{}, fmt.Errorf("ledger: escrow amount must be positive, got %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Escrow{}, fmt.Errorf("ledger: begin escrow: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET available = available - $1, locked = locked + $1, updated_at = $2 WHERE id = $3 AND available >= $1`,
		amount, now, from)
	if err != nil {
		return Escrow{}, fmt.Errorf("ledger: lock funds from %s: %w", from, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Escrow{}, fmt.Errorf("ledger: check lock rows: %w", err)
	}
	if rows == 0 {
		return Escrow{}, swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}

	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO escrows (id, from_account, to_account, amount, task_id, state, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, from, to, amount, taskID, EscrowPending, now, expiresAt); err != nil {
		return Escrow{}, fmt.Errorf("ledger: insert escrow %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Escrow{}, fmt.Errorf("ledger: commit escrow %s: %w", id, err)
	}

	esc := Escrow{ID: id, FromAccount: from, ToAccount: to, Amount: amount, TaskID: taskID, State: EscrowPending, CreatedAt: now}
	if expiresAt.Valid {
		esc.ExpiresAt = expiresAt.Time
	}
	return esc, nil
}

func (s *SQLLedger) resolveEscrow(ctx context.Context, escrowID string, creditTo bool, terminalState EscrowState) (Escrow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Escrow{}, fmt.Errorf("ledger: begin resolve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	esc, err := scanEscrow(tx.QueryRowContext(ctx,
		`SELECT id, from_account, to_account, amount, task_id, state, created_at, expires_at FROM escrows WHERE id = $1`,
		escrowID))
	if err != nil {
		return Escrow{}, err
	}
	if esc.State != EscrowPending {
		return Escrow{}, ErrEscrowNotPending
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET locked = locked - $1, updated_at = $2 WHERE id = $3`,
		esc.Amount, now, esc.FromAccount); err != nil {
		return Escrow{}, fmt.Errorf("ledger: unlock escrow %s: %w", escrowID, err)
	}

	recipient := esc.FromAccount
	if creditTo {
		recipient = esc.ToAccount
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET available = available + $1, updated_at = $2 WHERE id = $3`,
		esc.Amount, now, recipient); err != nil {
		return Escrow{}, fmt.Errorf("ledger: credit %s: %w", recipient, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE escrows SET state = $1, resolved_at = $2 WHERE id = $3`,
		terminalState, now, escrowID); err != nil {
		return Escrow{}, fmt.Errorf("ledger: mark escrow %s %s: %w", escrowID, terminalState, err)
	}

	if err := tx.Commit(); err != nil {
		return Escrow{}, fmt.Errorf("ledger: commit resolve %s: %w", escrowID, err)
	}

	esc.State = terminalState
	esc.ResolvedAt = now
	return esc, nil
}

func (s *SQLLedger) ReleaseEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	return s.resolveEscrow(ctx, escrowID, true, EscrowReleased)
}

func (s *SQLLedger) CancelEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	return s.resolveEscrow(ctx, escrowID, false, EscrowCancelled)
}

func (s *SQLLedger) GetEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	return scanEscrow(s.db.QueryRowContext(ctx,
		`SELECT id, from_account, to_account, amount, task_id, state, created_at, expires_at FROM escrows WHERE id = $1`,
		escrowID))
}

// ExpireOverdue selects PENDING escrows past their TTL using SKIP LOCKED
// so multiple nodes running the monitor concurrently don't double-expire
// the same escrow, then cancels each back to its source account.
func (s *SQLLedger) ExpireOverdue(ctx context.Context, now time.Time) ([]Escrow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM escrows WHERE state = $1 AND expires_at IS NOT NULL AND expires_at < $2 FOR UPDATE SKIP LOCKED`,
		EscrowPending, now)
	if err != nil {
		return nil, fmt.Errorf("ledger: select overdue escrows: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("ledger: scan overdue escrow id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()

	expired := make([]Escrow, 0, len(ids))
	for _, id := range ids {
		esc, err := s.CancelEscrow(ctx, id)
		if err != nil {
			return expired, err
		}
		esc.State = EscrowExpired
		expired = append(expired, esc)
	}
	return expired, nil
}

func (s *SQLLedger) Burn(ctx context.Context, account string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: burn amount must be positive, got %d", amount)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET locked = locked - $1, updated_at = $2 WHERE id = $3 AND locked >= $1`,
		amount, time.Now(), account)
	if err != nil {
		return fmt.Errorf("ledger: burn from %s: %w", account, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: check burn rows: %w", err)
	}
	if rows == 0 {
		return swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(row rowScanner) (Escrow, error) {
	var esc Escrow
	var expiresAt sql.NullTime
	if err := row.Scan(&esc.ID, &esc.FromAccount, &esc.ToAccount, &esc.Amount, &esc.TaskID, &esc.State, &esc.CreatedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("ledger: scan escrow: %w", err)
	}
	if expiresAt.Valid {
		esc.ExpiresAt = expiresAt.Time
	}
	return esc, nil
}

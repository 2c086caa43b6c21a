package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"akwaba.app/internal/kyc"
	"akwaba.app/internal/sealer"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	maxTxAttempts            = 3
)

const caseColumns = `id, subject_id, role, status, coalesce(rejection_reason, ''), document_type,
	document_number_sealed, document_url, attempt, submitted_at, decided_at, coalesce(decided_by, ''), updated_at`

// Store is the PostgreSQL kyc.Store. Document numbers are sealed before they are written.
type Store struct {
	db     *sql.DB
	sealer *sealer.Sealer
}

var _ kyc.Store = (*Store)(nil)

// Open connects with the pgx stdlib driver.
func Open(dsn string, s *sealer.Sealer) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	store, err := New(db, s)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing pool.
func New(db *sql.DB, s *sealer.Sealer) (*Store, error) {
	if db == nil {
		return nil, errors.New("pg: nil db")
	}
	if s == nil {
		return nil, errors.New("pg: a sealer is required")
	}
	return &Store{db: db, sealer: s}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, subjectID string, role kyc.Role) (kyc.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from kyc_cases where subject_id=$1 and role=$2`, subjectID, string(role))
	return s.scanCase(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (kyc.Case, error) {
	row := s.db.QueryRowContext(ctx, `select `+caseColumns+` from kyc_cases where id=$1`, id)
	return s.scanCase(row)
}

func (s *Store) MutateSubject(ctx context.Context, subjectID string, role kyc.Role, fn kyc.MutateFunc) (kyc.Case, error) {
	return s.withTx(ctx, func(tx *sql.Tx) (kyc.Case, error) {
		row := tx.QueryRowContext(ctx, `select `+caseColumns+` from kyc_cases where subject_id=$1 and role=$2 for update`, subjectID, string(role))
		cur, err := s.scanCase(row)
		exists := true
		if errors.Is(err, kyc.ErrNotFound) {
			exists = false
			cur = kyc.Case{SubjectID: subjectID, Role: role, State: kyc.State{Status: kyc.StatusNone}}
		} else if err != nil {
			return kyc.Case{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return kyc.Case{}, err
		}
		if exists {
			err = s.update(ctx, tx, cur.ID, next)
		} else {
			err = s.insert(ctx, tx, next)
		}
		if err != nil {
			return kyc.Case{}, err
		}
		return next, s.appendHistory(ctx, tx, next)
	})
}

func (s *Store) MutateByID(ctx context.Context, id string, fn kyc.MutateFunc) (kyc.Case, error) {
	return s.withTx(ctx, func(tx *sql.Tx) (kyc.Case, error) {
		row := tx.QueryRowContext(ctx, `select `+caseColumns+` from kyc_cases where id=$1 for update`, id)
		cur, err := s.scanCase(row)
		if err != nil {
			return kyc.Case{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return kyc.Case{}, err
		}
		if err := s.update(ctx, tx, cur.ID, next); err != nil {
			return kyc.Case{}, err
		}
		return next, s.appendHistory(ctx, tx, next)
	})
}

func (s *Store) List(ctx context.Context, status kyc.Status, limit int) ([]kyc.Case, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+caseColumns+`
		from kyc_cases
		where status=$1
		order by submitted_at asc, id asc
		limit $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kyc.Case
	for rows.Next() {
		c, err := s.scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, status kyc.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from kyc_cases where status=$1`, string(status)).Scan(&n)
	return n, err
}

// withTx runs fn in a serializable transaction, retrying on serialization
// failures and on a lost race to create the pair's first row.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) (kyc.Case, error)) (kyc.Case, error) {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		c, err := s.runTx(ctx, fn)
		if err == nil {
			return c, nil
		}
		if !retryable(err) {
			return kyc.Case{}, err
		}
		lastErr = err
	}
	if pgCode(lastErr) == codeUniqueViolation {
		return kyc.Case{}, kyc.ErrAlreadyPending
	}
	return kyc.Case{}, fmt.Errorf("pg: transaction retries exhausted: %w", lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) (kyc.Case, error)) (kyc.Case, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return kyc.Case{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := fn(tx)
	if err != nil {
		return kyc.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return kyc.Case{}, err
	}
	return c, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, c kyc.Case) error {
	sealed, err := s.sealer.Seal(c.DocumentNumber, c.ID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		insert into kyc_cases(id, subject_id, role, status, rejection_reason, document_type,
			document_number_sealed, document_url, attempt, submitted_at, decided_at, decided_by, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7,$8,$9,$10,$11,nullif($12,''),$13)
	`, c.ID, c.SubjectID, string(c.Role), string(c.Status), c.RejectionReason, string(c.DocumentType),
		sealed, c.DocumentURL, c.Attempt, c.SubmittedAt, nullTime(c.DecidedAt), c.DecidedBy, c.UpdatedAt)
	return err
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, currentID string, c kyc.Case) error {
	sealed, err := s.sealer.Seal(c.DocumentNumber, c.ID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		update kyc_cases set id=$1, status=$2, rejection_reason=nullif($3,''), document_type=$4,
			document_number_sealed=$5, document_url=$6, attempt=$7, submitted_at=$8, decided_at=$9,
			decided_by=nullif($10,''), updated_at=$11
		where id=$12
	`, c.ID, string(c.Status), c.RejectionReason, string(c.DocumentType), sealed, c.DocumentURL,
		c.Attempt, c.SubmittedAt, nullTime(c.DecidedAt), c.DecidedBy, c.UpdatedAt, currentID)
	return err
}

func (s *Store) appendHistory(ctx context.Context, tx *sql.Tx, c kyc.Case) error {
	actor := c.DecidedBy
	if c.Status == kyc.StatusPending {
		actor = c.SubjectID
	}
	_, err := tx.ExecContext(ctx, `
		insert into kyc_case_history(case_id, subject_id, role, status, rejection_reason, attempt, actor, occurred_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,nullif($7,''),$8)
	`, c.ID, c.SubjectID, string(c.Role), string(c.Status), c.RejectionReason, c.Attempt, actor, c.UpdatedAt)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCase(row scanner) (kyc.Case, error) {
	var (
		c         kyc.Case
		role      string
		status    string
		docType   string
		sealed    string
		decidedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.SubjectID, &role, &status, &c.RejectionReason, &docType,
		&sealed, &c.DocumentURL, &c.Attempt, &c.SubmittedAt, &decidedAt, &c.DecidedBy, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return kyc.Case{}, kyc.ErrNotFound
	}
	if err != nil {
		return kyc.Case{}, err
	}
	c.Role = kyc.Role(role)
	c.Status = kyc.Status(status)
	c.DocumentType = kyc.DocumentType(docType)
	if decidedAt.Valid {
		c.DecidedAt = decidedAt.Time
	}
	c.DocumentNumber, err = s.sealer.Open(sealed, c.ID)
	if err != nil {
		return kyc.Case{}, fmt.Errorf("pg: open document number for case %s: %w", c.ID, err)
	}
	return c, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func retryable(err error) bool {
	switch pgCode(err) {
	case codeUniqueViolation, codeSerializationFailure:
		return true
	}
	return false
}

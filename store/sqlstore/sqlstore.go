/*
Package sqlstore implements the dues store interfaces on database/sql.

PURPOSE:
  The SQLite and PostgreSQL stores share every query. Each driver package
  opens the connection, creates the schema and wraps a *Store with its
  Dialect. Only placeholders differ between the two: queries are written
  with "?" and rebound to "$1, $2, ..." for PostgreSQL.

KEY TABLES:
  club_settings:        Singleton row (id = 1)
  members:              Member records
  member_fee_settings:  Optional per-member overrides, one per member
  fee_payments:         Payment ledger, PRIMARY KEY (member_id, year)
  arrears_runs:         Background arrears check history

COLUMN ENCODING:
  Calendar dates:  "YYYY-MM-DD" text (DATE on PostgreSQL)
  Money:           decimal text (NUMERIC on PostgreSQL) plus a currency column
  Periods:         JSON array of {start_date, end_date, reason}
  Timestamps:      TIMESTAMP / TIMESTAMPTZ, written by the store

UPSERTS:
  Every write is INSERT ... ON CONFLICT DO UPDATE, which both dialects
  accept. Nothing is ever deleted except by Reset.

ERRORS:
  Missing rows map to the generic.Err*NotFound sentinels. Any other driver
  error is wrapped once in *generic.StoreError with the operation name.

SEE ALSO:
  - store/sqlite: SQLite driver, inline schema
  - store/postgres: pgx driver, goose migrations
  - factory: DecodePeriods / EncodePeriods for the JSON columns
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mouros/motohub/factory"
	"github.com/mouros/motohub/generic"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Store implements generic.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var (
	_ generic.Store    = (*Store)(nil)
	_ generic.Resetter = (*Store)(nil)
)

// New wraps an open database. The schema must already exist.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

// =============================================================================
// CLUB SETTINGS
// =============================================================================

func (s *Store) GetClubSettings(ctx context.Context) (generic.ClubSettings, error) {
	const op = "get club settings"

	var (
		cs                                generic.ClubSettings
		founding, feeStart, fee, currency sql.NullString
		periods                           sql.NullString
		updatedAt                         sql.NullTime
	)
	err := s.queryRow(ctx, `
		SELECT name, short_name, founding_date, annual_fee, currency,
			fee_start_date, inactive_periods, updated_at
		FROM club_settings WHERE id = 1
	`).Scan(&cs.Name, &cs.ShortName, &founding, &fee, &currency, &feeStart, &periods, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ClubSettings{}, generic.ErrClubSettingsNotFound
	}
	if err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}

	if cs.FoundingDate, err = generic.ParseDate(founding.String); err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	if cs.FeeStartDate, err = generic.ParseDate(feeStart.String); err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	if cs.AnnualFee, err = parseAmount(fee, currency); err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	if cs.InactivePeriods, err = factory.DecodePeriods([]byte(periods.String)); err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	cs.UpdatedAt = updatedAt.Time
	return cs, nil
}

func (s *Store) UpsertClubSettings(ctx context.Context, cs generic.ClubSettings) (generic.ClubSettings, error) {
	const op = "upsert club settings"

	periods, err := factory.EncodePeriods(cs.InactivePeriods)
	if err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	if cs.AnnualFee.Currency == "" {
		cs.AnnualFee = generic.DefaultAnnualFee
	}
	cs.UpdatedAt = s.now()

	err = s.exec(ctx, `
		INSERT INTO club_settings (id, name, short_name, founding_date, annual_fee, currency,
			fee_start_date, inactive_periods, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			short_name = excluded.short_name,
			founding_date = excluded.founding_date,
			annual_fee = excluded.annual_fee,
			currency = excluded.currency,
			fee_start_date = excluded.fee_start_date,
			inactive_periods = excluded.inactive_periods,
			updated_at = excluded.updated_at
	`,
		cs.Name, cs.ShortName, nullDate(cs.FoundingDate),
		cs.AnnualFee.Value.String(), string(cs.AnnualFee.Currency),
		nullDate(cs.FeeStartDate), string(periods), cs.UpdatedAt,
	)
	if err != nil {
		return generic.ClubSettings{}, wrap(op, err)
	}
	return cs, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, member_number, name, email, member_type, join_date, honorary, created_at`

func (s *Store) GetMember(ctx context.Context, id generic.MemberID) (generic.Member, error) {
	row := s.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, string(id))
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Member{}, generic.ErrMemberNotFound
	}
	if err != nil {
		return generic.Member{}, wrap("get member", err)
	}
	return m, nil
}

func (s *Store) UpsertMember(ctx context.Context, m generic.Member) (generic.Member, error) {
	err := s.exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			member_number = excluded.member_number,
			name = excluded.name,
			email = excluded.email,
			member_type = excluded.member_type,
			join_date = excluded.join_date,
			honorary = excluded.honorary
	`,
		string(m.ID), m.MemberNumber, m.Name, m.Email, string(m.Type),
		nullDate(m.JoinDate), m.Honorary, s.now(),
	)
	if err != nil {
		return generic.Member{}, wrap("upsert member", err)
	}
	return s.GetMember(ctx, m.ID)
}

func (s *Store) ListMembers(ctx context.Context) ([]generic.Member, error) {
	rows, err := s.query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY member_number, id`)
	if err != nil {
		return nil, wrap("list members", err)
	}
	defer rows.Close()

	members := []generic.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, wrap("list members", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list members", err)
	}
	return members, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (generic.Member, error) {
	var (
		m               generic.Member
		id, mtype       string
		email, joinDate sql.NullString
		createdAt       sql.NullTime
	)
	if err := row.Scan(&id, &m.MemberNumber, &m.Name, &email, &mtype, &joinDate, &m.Honorary, &createdAt); err != nil {
		return generic.Member{}, err
	}
	join, err := generic.ParseDate(joinDate.String)
	if err != nil {
		return generic.Member{}, err
	}
	m.ID = generic.MemberID(id)
	m.Email = email.String
	m.Type = generic.MemberType(mtype)
	m.JoinDate = join
	m.CreatedAt = createdAt.Time
	return m, nil
}

// =============================================================================
// MEMBER FEE SETTINGS
// =============================================================================

func (s *Store) GetMemberFeeSettings(ctx context.Context, id generic.MemberID) (generic.MemberFeeSettings, error) {
	const op = "get member fee settings"

	var (
		joinDate, periods sql.NullString
		updatedAt         sql.NullTime
	)
	err := s.queryRow(ctx, `
		SELECT join_date, exempt_periods, updated_at
		FROM member_fee_settings WHERE member_id = ?
	`, string(id)).Scan(&joinDate, &periods, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.MemberFeeSettings{}, generic.ErrFeeSettingsNotFound
	}
	if err != nil {
		return generic.MemberFeeSettings{}, wrap(op, err)
	}

	fs := generic.MemberFeeSettings{MemberID: id, UpdatedAt: updatedAt.Time}
	if fs.JoinDate, err = generic.ParseDate(joinDate.String); err != nil {
		return generic.MemberFeeSettings{}, wrap(op, err)
	}
	if fs.ExemptPeriods, err = factory.DecodePeriods([]byte(periods.String)); err != nil {
		return generic.MemberFeeSettings{}, wrap(op, err)
	}
	return fs, nil
}

func (s *Store) UpsertMemberFeeSettings(ctx context.Context, fs generic.MemberFeeSettings) (generic.MemberFeeSettings, error) {
	const op = "upsert member fee settings"

	periods, err := factory.EncodePeriods(fs.ExemptPeriods)
	if err != nil {
		return generic.MemberFeeSettings{}, wrap(op, err)
	}
	fs.UpdatedAt = s.now()

	err = s.exec(ctx, `
		INSERT INTO member_fee_settings (member_id, join_date, exempt_periods, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			join_date = excluded.join_date,
			exempt_periods = excluded.exempt_periods,
			updated_at = excluded.updated_at
	`, string(fs.MemberID), nullDate(fs.JoinDate), string(periods), fs.UpdatedAt)
	if err != nil {
		return generic.MemberFeeSettings{}, wrap(op, err)
	}
	return fs, nil
}

// =============================================================================
// FEE PAYMENTS
// =============================================================================

const paymentColumns = `member_id, year, paid, paid_date, amount, currency, receipt_number, notes, updated_at`

func (s *Store) GetFeePayment(ctx context.Context, id generic.MemberID, year int) (generic.FeePayment, error) {
	row := s.queryRow(ctx, `SELECT `+paymentColumns+` FROM fee_payments WHERE member_id = ? AND year = ?`,
		string(id), year)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.FeePayment{}, generic.ErrPaymentNotFound
	}
	if err != nil {
		return generic.FeePayment{}, wrap("get fee payment", err)
	}
	return p, nil
}

func (s *Store) UpsertFeePayment(ctx context.Context, p generic.FeePayment) (generic.FeePayment, error) {
	if p.Amount.Currency == "" {
		p.Amount.Currency = generic.CurrencyEUR
	}
	p.UpdatedAt = s.now()

	err := s.exec(ctx, `
		INSERT INTO fee_payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, year) DO UPDATE SET
			paid = excluded.paid,
			paid_date = excluded.paid_date,
			amount = excluded.amount,
			currency = excluded.currency,
			receipt_number = excluded.receipt_number,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`,
		string(p.MemberID), p.Year, p.Paid, nullDate(p.PaidDate),
		p.Amount.Value.String(), string(p.Amount.Currency),
		nullString(p.ReceiptNumber), nullString(p.Notes), p.UpdatedAt,
	)
	if err != nil {
		return generic.FeePayment{}, wrap("upsert fee payment", err)
	}
	return p, nil
}

func (s *Store) ListFeePayments(ctx context.Context, id generic.MemberID) ([]generic.FeePayment, error) {
	rows, err := s.query(ctx, `SELECT `+paymentColumns+` FROM fee_payments WHERE member_id = ? ORDER BY year`,
		string(id))
	if err != nil {
		return nil, wrap("list fee payments", err)
	}
	defer rows.Close()

	payments := []generic.FeePayment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, wrap("list fee payments", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list fee payments", err)
	}
	return payments, nil
}

func scanPayment(row scanner) (generic.FeePayment, error) {
	var (
		p                          generic.FeePayment
		memberID                   string
		paidDate, amount, currency sql.NullString
		receipt, notes             sql.NullString
		updatedAt                  sql.NullTime
	)
	if err := row.Scan(&memberID, &p.Year, &p.Paid, &paidDate, &amount, &currency, &receipt, &notes, &updatedAt); err != nil {
		return generic.FeePayment{}, err
	}
	var err error
	if p.PaidDate, err = generic.ParseDate(paidDate.String); err != nil {
		return generic.FeePayment{}, err
	}
	if p.Amount, err = parseAmount(amount, currency); err != nil {
		return generic.FeePayment{}, err
	}
	p.MemberID = generic.MemberID(memberID)
	p.ReceiptNumber = receipt.String
	p.Notes = notes.String
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

// =============================================================================
// ARREARS RUNS
// =============================================================================

func (s *Store) SaveArrearsRun(ctx context.Context, r generic.ArrearsRun) error {
	var completedAt sql.NullTime
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}
	total := r.TotalOutstanding
	if total.Currency == "" {
		total = generic.ZeroAmount(generic.CurrencyEUR)
	}

	err := s.exec(ctx, `
		INSERT INTO arrears_runs (id, year, status, members_checked, members_in_arrears,
			total_outstanding, currency, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			members_checked = excluded.members_checked,
			members_in_arrears = excluded.members_in_arrears,
			total_outstanding = excluded.total_outstanding,
			currency = excluded.currency,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, r.Year, string(r.Status), r.MembersChecked, r.MembersInArrears,
		total.Value.String(), string(total.Currency), nullString(r.Error),
		r.StartedAt, completedAt,
	)
	if err != nil {
		return wrap("save arrears run", err)
	}
	return nil
}

func (s *Store) ListArrearsRuns(ctx context.Context, limit int) ([]generic.ArrearsRun, error) {
	const op = "list arrears runs"

	query := `
		SELECT id, year, status, members_checked, members_in_arrears,
			total_outstanding, currency, error, started_at, completed_at
		FROM arrears_runs
		ORDER BY started_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	runs := []generic.ArrearsRun{}
	for rows.Next() {
		var (
			r               generic.ArrearsRun
			status          string
			total, currency sql.NullString
			runErr          sql.NullString
			completedAt     sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Year, &status, &r.MembersChecked, &r.MembersInArrears,
			&total, &currency, &runErr, &r.StartedAt, &completedAt); err != nil {
			return nil, wrap(op, err)
		}
		if r.TotalOutstanding, err = parseAmount(total, currency); err != nil {
			return nil, wrap(op, err)
		}
		r.Status = generic.RunStatus(status)
		r.Error = runErr.String
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return runs, nil
}

// =============================================================================
// RESET
// =============================================================================

// Reset deletes every row, children first.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("reset", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"fee_payments", "member_fee_settings", "members", "club_settings", "arrears_runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return wrap("reset "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("reset", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func wrap(op string, err error) error {
	return &generic.StoreError{Op: op, Err: err}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

func parseAmount(value, currency sql.NullString) (generic.Amount, error) {
	cur := generic.Currency(currency.String)
	if cur == "" {
		cur = generic.CurrencyEUR
	}
	if !value.Valid || value.String == "" {
		return generic.ZeroAmount(cur), nil
	}
	return generic.NewAmountFromString(value.String, cur)
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// psql error codes
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type (
	// Store runs repository calls against Postgres. Calls made with a context returned
	// by WithinTx take part in that transaction.
	Store struct {
		db *sqlx.DB
	}

	txKey struct{}
)

var _ core.Transactor = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
// There is no retry: a serialization failure or deadlock surfaces as an error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// getExec returns the transaction carried by ctx, or the database.
func (s *Store) getExec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) get(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, s.getExec(ctx), dest, query, args...)
}

func (s *Store) selectAll(ctx context.Context, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, s.getExec(ctx), dest, query, args...)
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return s.getExec(ctx).ExecContext(ctx, query, args...)
}

// execOne runs b and reports errNotFound when it touched no row.
func (s *Store) execOne(ctx context.Context, b sq.Sqlizer, errNotFound error) error {
	res, err := s.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

func (s *Store) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists, b.Prefix("SELECT EXISTS(").Suffix(")"))
	return exists, err
}

func (s *Store) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	var n int
	err := s.get(ctx, &n, b)
	return n, err
}

// trapNoRowsErr maps "no rows" to errNotFound.
func trapNoRowsErr(err error, errNotFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound
	}
	return errors.Wrap(err, msg)
}

// constraintErr returns the violated constraint when err is one of the given psql codes.
func constraintErr(err error, codes ...string) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", false
	}
	for _, code := range codes {
		if string(pqErr.Code) == code {
			return pqErr.Constraint, true
		}
	}
	return "", false
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

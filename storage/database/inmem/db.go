package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	// DB is an in-memory database. Transactions are serialized: a transaction holds the
	// database lock until it ends and an error restores the tables it started with.
	DB struct {
		mu     sync.RWMutex
		tables tables
	}

	tables struct {
		schools    map[string]school.School
		users      map[string]user.User
		classrooms map[string]classroom.Classroom
		students   map[string]student.Student
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: tables{
		schools:    make(map[string]school.School),
		users:      make(map[string]user.User),
		classrooms: make(map[string]classroom.Classroom),
		students:   make(map[string]student.Student),
	}}
}

func (t tables) snapshot() tables {
	snap := tables{
		schools:    make(map[string]school.School, len(t.schools)),
		users:      make(map[string]user.User, len(t.users)),
		classrooms: make(map[string]classroom.Classroom, len(t.classrooms)),
		students:   make(map[string]student.Student, len(t.students)),
	}
	// stored values are never mutated in place: copying the maps is enough
	for k, v := range t.schools {
		snap.schools[k] = v
	}
	for k, v := range t.users {
		snap.users[k] = v
	}
	for k, v := range t.classrooms {
		snap.classrooms[k] = v
	}
	for k, v := range t.students {
		snap.students[k] = v
	}
	return snap
}

func (db *DB) inTx(ctx context.Context) bool {
	txDB, ok := ctx.Value(txKey{}).(*DB)
	return ok && txDB == db
}

// WithinTx runs fn while holding the database lock. Nested calls join the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.tables.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.tables = snap
		return err
	}
	return nil
}

// rlock and lock are no-ops inside a transaction, which already holds the lock.
func (db *DB) rlock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = Open().tables
}

func paginate(n int, page core.Page) (start, end int) {
	start = page.Offset()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end = start + page.Limit
	if end > n || end < start {
		end = n
	}
	return start, end
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append(make([]string, 0, len(s)), s...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := *t
	return &tt
}

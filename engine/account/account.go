// Package account reads and writes the relationally modelled entities:
// users, groups and experiments. Resource URIs are stored as plain text
// columns keyed by the same identifiers used in the graph.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/phisdata/phis-dal/engine/domain"
)

const (
	getUserStmt = `SELECT email, uri, first_name, family_name, admin, available
FROM users WHERE email = $1`
	isAdminStmt    = `SELECT admin FROM users WHERE email = $1 AND available`
	insertUserStmt = `INSERT INTO users (email, uri, first_name, family_name, admin, available)
VALUES (:email, :uri, :first_name, :family_name, :admin, :available)`
	groupsOfStmt = `SELECT g.uri, g.name, g.level
FROM groups g JOIN users_groups ug ON ug.group_uri = g.uri
WHERE ug.user_email = $1 ORDER BY g.name`
	experimentExistsStmt = `SELECT EXISTS (SELECT 1 FROM experiments WHERE uri = $1)`
	insertExperimentStmt = `INSERT INTO experiments (uri, alias, campaign, start_date, end_date)
VALUES (:uri, :alias, :campaign, :start_date, :end_date)`
	experimentsOfStmt = `SELECT e.uri, e.alias, e.campaign, e.start_date, e.end_date
FROM experiments e
JOIN experiments_groups eg ON eg.experiment_uri = e.uri
JOIN users_groups ug ON ug.group_uri = eg.group_uri
WHERE ug.user_email = $1
ORDER BY e.start_date DESC`
)

// Postgres error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// User is an account able to call the data-access layer.
type User struct {
	Email      string             `db:"email" json:"email"`
	URI        domain.ResourceURI `db:"uri" json:"uri"`
	FirstName  string             `db:"first_name" json:"firstName"`
	FamilyName string             `db:"family_name" json:"familyName"`
	Admin      bool               `db:"admin" json:"admin"`
	Available  bool               `db:"available" json:"available"`
}

// Group is a set of users sharing experiment access.
type Group struct {
	URI   domain.ResourceURI `db:"uri" json:"uri"`
	Name  string             `db:"name" json:"name"`
	Level string             `db:"level" json:"level"`
}

// Experiment is the relational side of an experiment resource.
type Experiment struct {
	URI       domain.ResourceURI `db:"uri" json:"uri"`
	Alias     string             `db:"alias" json:"alias"`
	Campaign  int                `db:"campaign" json:"campaign"`
	StartDate time.Time          `db:"start_date" json:"startDate"`
	// EndDate is nil while the experiment runs.
	EndDate *time.Time `db:"end_date" json:"endDate,omitempty"`
}

// Users answers principal questions for the validator.
type Users interface {
	IsAdmin(ctx context.Context, principal string) (bool, error)
}

// Experiments answers experiment existence for the validator. Experiments are
// relational rows, not graph resources.
type Experiments interface {
	ExperimentExists(ctx context.Context, uri domain.ResourceURI) (bool, error)
}

// Store is the Postgres-backed account store.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

var (
	_ Users       = (*Store)(nil)
	_ Experiments = (*Store)(nil)
)

// NewStore creates a new Store over db.
func NewStore(db *sqlx.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Open connects to Postgres and checks the connection.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, domain.NewPersistenceError("connect", domain.PersistenceUnavailable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, log), nil
}

func (s *Store) Close() error { return s.db.Close() }

// IsAdmin reports whether principal is an available administrator. Unknown
// principals are not administrators.
func (s *Store) IsAdmin(ctx context.Context, principal string) (bool, error) {
	var admin bool
	err := s.db.GetContext(ctx, &admin, isAdminStmt, principal)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("is admin", err)
	}
	return admin, nil
}

// User returns the account registered under email.
func (s *Store) User(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, getUserStmt, email)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return u, s.fail("get user", err)
	}
	return u, nil
}

// CreateUser registers u. A taken email is a duplicate.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	if _, err := s.db.NamedExecContext(ctx, insertUserStmt, u); err != nil {
		return s.fail("create user", err)
	}
	return nil
}

// GroupsOf lists the groups email belongs to, by name.
func (s *Store) GroupsOf(ctx context.Context, email string) ([]Group, error) {
	var gs []Group
	if err := s.db.SelectContext(ctx, &gs, groupsOfStmt, email); err != nil {
		return nil, s.fail("groups of", err)
	}
	return gs, nil
}

// ExperimentExists reports whether uri has a row in the experiments table.
func (s *Store) ExperimentExists(ctx context.Context, uri domain.ResourceURI) (bool, error) {
	var ok bool
	if err := s.db.GetContext(ctx, &ok, experimentExistsStmt, string(uri)); err != nil {
		return false, s.fail("experiment exists", err)
	}
	return ok, nil
}

// CreateExperiments inserts experiments in one transaction.
func (s *Store) CreateExperiments(ctx context.Context, exps []Experiment) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.fail("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, e := range exps {
		if _, err = tx.NamedExecContext(ctx, insertExperimentStmt, e); err != nil {
			return s.fail("create experiment", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return s.fail("commit", err)
	}
	return nil
}

// ExperimentsOf lists the experiments visible to a user through its groups.
func (s *Store) ExperimentsOf(ctx context.Context, email string) ([]Experiment, error) {
	var es []Experiment
	if err := s.db.SelectContext(ctx, &es, experimentsOfStmt, email); err != nil {
		return nil, s.fail("experiments of", err)
	}
	return es, nil
}

func (s *Store) fail(op string, err error) error {
	kind := classify(err)
	s.log.Error("relational store failure", "op", op, "kind", kind.String(), "err", err)
	return domain.NewPersistenceError(op, kind, err)
}

// classify maps driver errors onto persistence kinds so *pq.Error never
// reaches callers as the only description of a failure.
func classify(err error) domain.PersistenceKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation:
			return domain.PersistenceDuplicate
		case pqErr.Code == foreignKeyViolation, pqErr.Code.Class() == "22", pqErr.Code.Class() == "42":
			return domain.PersistenceMalformed
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return domain.PersistenceUnavailable
		}
		return domain.PersistenceUnexpected
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return domain.PersistenceUnavailable
	}
	return domain.PersistenceUnexpected
}

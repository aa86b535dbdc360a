package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	GetBookByToken(ctx context.Context, token string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	CountBooks(ctx context.Context, availableOnly bool) (int, error)

	CreateStudent(ctx context.Context, student model.Student) (model.Student, error)
	GetStudent(ctx context.Context, id int64) (model.Student, error)
	GetStudentByAdmission(ctx context.Context, admissionNumber string) (model.Student, error)
	ListStudents(ctx context.Context, query string) ([]model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	CountStudents(ctx context.Context) (int, error)

	CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error)
	CloseIssue(ctx context.Context, id int64, closeFn CloseFunc) (model.Issue, error)
	GetIssue(ctx context.Context, id int64) (model.Issue, error)
	ListIssues(ctx context.Context, filter model.IssueFilter) ([]model.Issue, error)
	UpdateFines(ctx context.Context, fines map[int64]float64) error
	CountOpenIssues(ctx context.Context) (int, error)
}

// CloseFunc receives the locked open issue and returns it in its closed
// state. An error aborts the surrounding transaction.
type CloseFunc func(issue model.Issue) (model.Issue, error)

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName    = `books`
	studentsTableName = `students`
	issuesTableName   = `issues`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

var constraintKinds = map[string]error{
	"books_book_code_key":           errs.ErrBookCodeTaken,
	"books_barcode_key":             errs.ErrBookCodeTaken,
	"students_admission_number_key": errs.ErrAdmissionNumberTaken,
}

var constraintMessages = map[string]string{
	"books_book_code_key":           "book code is already allocated",
	"books_barcode_key":             "barcode is already allocated",
	"students_admission_number_key": "admission number already exists",
	"students_email_key":            "email is already registered",
	"issues_open_book_idx":          "book is already issued",
}

// classify turns driver errors into the error taxonomy.
func (r *repository) classify(err error, op string) error {
	if err == nil || errs.IsDomain(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg, ok := constraintMessages[pgErr.ConstraintName]
		if !ok {
			msg = pgErr.Message
		}
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			if kind, ok := constraintKinds[pgErr.ConstraintName]; ok {
				return errs.Wrap(kind, "%s", msg)
			}
			return errs.Conflict("%s", msg)
		case pgerrcode.ForeignKeyViolation:
			return errs.ReferentialIntegrity("%s", msg)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation,
			pgerrcode.StringDataRightTruncationDataException:
			return errs.Validation("%s", msg)
		case pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure:
			return errs.Conflict("%s: concurrent update, retry", op)
		}
	}
	r.log.Error(op, zap.Error(err))
	return errs.Storage(err, op)
}

func count(ctx context.Context, q querier, b sq.SelectBuilder) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// containsPattern builds an ILIKE pattern matching s literally anywhere.
func containsPattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

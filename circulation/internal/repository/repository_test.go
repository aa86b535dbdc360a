package repository

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/migrations"
	"github.com/Astemirdum/library-circulation/pkg/postgres"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	r := &repository{log: zap.NewNop()}

	tests := []struct {
		name string
		err  error
		want []error
	}{
		{
			name: "book code taken",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "books_book_code_key"},
			want: []error{errs.ErrBookCodeTaken, errs.ErrConflict},
		},
		{
			name: "admission number taken",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "students_admission_number_key"},
			want: []error{errs.ErrAdmissionNumberTaken, errs.ErrConflict},
		},
		{
			name: "email taken",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "students_email_key"},
			want: []error{errs.ErrConflict},
		},
		{
			name: "foreign key",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "issues_book_id_fkey"},
			want: []error{errs.ErrReferentialIntegrity, errs.ErrConflict},
		},
		{
			name: "check",
			err:  &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "violates check"},
			want: []error{errs.ErrValidation},
		},
		{
			name: "value too long",
			err:  &pgconn.PgError{Code: pgerrcode.StringDataRightTruncationDataException, Message: "value too long for type character varying(200)"},
			want: []error{errs.ErrValidation},
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: pgerrcode.DeadlockDetected, Message: "deadlock detected"},
			want: []error{errs.ErrConflict},
		},
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			want: []error{errs.ErrConflict},
		},
		{
			name: "driver failure",
			err:  errors.New("connection reset"),
			want: []error{errs.ErrStorage},
		},
		{
			name: "domain error passes through",
			err:  errs.NotFound("book 1 not found"),
			want: []error{errs.ErrNotFound},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.classify(errors.Wrap(tt.err, "exec"), "op")
			for _, kind := range tt.want {
				require.ErrorIs(t, got, kind)
			}
		})
	}
	require.NoError(t, r.classify(nil, "op"))
}

func TestClassify_NotStorage(t *testing.T) {
	t.Parallel()
	r := &repository{log: zap.NewNop()}
	got := r.classify(&pgconn.PgError{Code: pgerrcode.StringDataRightTruncationDataException}, "CreateBook")
	require.NotErrorIs(t, got, errs.ErrStorage)
	got = r.classify(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, "UpdateFines")
	require.NotErrorIs(t, got, errs.ErrStorage)
}

func TestSortedIDs(t *testing.T) {
	t.Parallel()
	fines := map[int64]float64{42: 20, 7: 40, 19: 0, 3: 100, 100: 60}
	for i := 0; i < 10; i++ {
		require.Equal(t, []int64{3, 7, 19, 42, 100}, sortedIDs(fines))
	}
	require.Empty(t, sortedIDs(nil))
}

func TestContainsPattern(t *testing.T) {
	t.Parallel()
	require.Equal(t, `%go%`, containsPattern("go"))
	require.Equal(t, `%100\%\_a\\b%`, containsPattern(`100%_a\b`))
}

// testDB connects to CIRCULATION_TEST_DSN, applies migrations and truncates
// all tables. The test is skipped when the variable is unset.
func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("CIRCULATION_TEST_DSN")
	if dsn == "" {
		t.Skip("CIRCULATION_TEST_DSN is not set")
	}
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	pass, _ := u.User.Password()
	cfg := &postgres.DB{
		Host:     u.Hostname(),
		Port:     u.Port(),
		Username: u.User.Username(),
		Password: pass,
		NameDB:   u.Path[1:],
		SSLMode:  "disable",
	}
	ctx := context.Background()
	db, err := postgres.NewPostgresDB(ctx, cfg, migrations.MigrationFiles)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	_, err = db.Exec(ctx, `truncate issues, students, books restart identity cascade`)
	require.NoError(t, err)
	return db
}

func newTestRepo(t *testing.T) *repository {
	t.Helper()
	r, err := NewRepository(testDB(t), zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRepository_Integration(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	t.Run("book codes are dense per category under concurrency", func(t *testing.T) {
		const n = 25
		var wg sync.WaitGroup
		codes := make(chan string, n)
		failures := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b, err := r.CreateBook(ctx, model.Book{
					Title: "Concurrent", Author: "A", Type: model.BookTypeTextbook,
					Category: "history", DurationType: model.DurationSemester, Available: true,
				})
				if err != nil {
					failures <- err
					return
				}
				codes <- b.BookCode
			}()
		}
		wg.Wait()
		close(codes)
		close(failures)
		for err := range failures {
			require.NoError(t, err)
		}
		seen := map[string]bool{}
		for c := range codes {
			require.False(t, seen[c])
			seen[c] = true
		}
		require.Len(t, seen, n)
		require.True(t, seen["090025"])

		found, err := r.GetBookByToken(ctx, "LIB090001")
		require.NoError(t, err)
		require.Equal(t, "090001", found.BookCode)
	})

	t.Run("issue lifecycle", func(t *testing.T) {
		book, err := r.CreateBook(ctx, model.Book{
			Title: "Physics", Author: "Halliday", Type: model.BookTypeTextbook,
			Category: "science", DurationType: model.DurationSemester, Available: true,
		})
		require.NoError(t, err)
		st, err := r.CreateStudent(ctx, model.Student{AdmissionNumber: "11112222", Name: "Ann", Course: "Physics"})
		require.NoError(t, err)

		_, err = r.CreateStudent(ctx, model.Student{AdmissionNumber: "11112222", Name: "Bo", Course: "Art"})
		require.ErrorIs(t, err, errs.ErrAdmissionNumberTaken)

		now := time.Now().UTC().Truncate(time.Microsecond)
		issue, err := r.CreateIssue(ctx, model.Issue{
			StudentID: st.ID, BookID: book.ID, IssueDate: now, DueDate: now.AddDate(0, 0, 14),
		})
		require.NoError(t, err)

		_, err = r.CreateIssue(ctx, model.Issue{
			StudentID: st.ID, BookID: book.ID, IssueDate: now, DueDate: now.AddDate(0, 0, 14),
		})
		require.ErrorIs(t, err, errs.ErrConflict)
		require.ErrorIs(t, r.DeleteBook(ctx, book.ID), errs.ErrReferentialIntegrity)

		require.NoError(t, r.UpdateFines(ctx, map[int64]float64{issue.ID: 40}))
		withFine, err := r.ListIssues(ctx, model.IssueFilter{WithFine: true})
		require.NoError(t, err)
		require.Len(t, withFine, 1)

		closed, err := r.CloseIssue(ctx, issue.ID, func(is model.Issue) (model.Issue, error) {
			rd := now.Add(time.Hour)
			is.Returned, is.ReturnDate, is.Fine = true, &rd, 60
			return is, nil
		})
		require.NoError(t, err)
		require.True(t, closed.Returned)

		stored, err := r.GetBook(ctx, book.ID)
		require.NoError(t, err)
		require.True(t, stored.Available)

		require.NoError(t, r.UpdateFines(ctx, map[int64]float64{issue.ID: 999}))
		got, err := r.GetIssue(ctx, issue.ID)
		require.NoError(t, err)
		require.Equal(t, 60.0, got.Fine)

		require.NoError(t, r.DeleteBook(ctx, book.ID))
		_, err = r.GetIssue(ctx, issue.ID)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("concurrent fine refreshes serialize", func(t *testing.T) {
		st, err := r.CreateStudent(ctx, model.Student{AdmissionNumber: "55556666", Name: "Di", Course: "Law"})
		require.NoError(t, err)
		now := time.Now().UTC()
		fines := map[int64]float64{}
		for i := 0; i < 6; i++ {
			book, err := r.CreateBook(ctx, model.Book{
				Title: "Torts", Author: "Prosser", Type: model.BookTypeTextbook,
				Category: "literature", DurationType: model.DurationSemester, Available: true,
			})
			require.NoError(t, err)
			is, err := r.CreateIssue(ctx, model.Issue{StudentID: st.ID, BookID: book.ID, IssueDate: now, DueDate: now})
			require.NoError(t, err)
			fines[is.ID] = float64(20 * (i + 1))
		}
		const n = 8
		var wg sync.WaitGroup
		failures := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.UpdateFines(ctx, fines); err != nil {
					failures <- err
				}
			}()
		}
		wg.Wait()
		close(failures)
		for err := range failures {
			require.NoError(t, err)
		}
		require.NoError(t, r.DeleteStudent(ctx, st.ID))
	})

	t.Run("overlong title is a validation error", func(t *testing.T) {
		_, err := r.CreateBook(ctx, model.Book{
			Title: strings.Repeat("t", 201), Author: "A", Type: model.BookTypeTextbook,
			Category: "history", DurationType: model.DurationSemester, Available: true,
		})
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("delete student frees books", func(t *testing.T) {
		book, err := r.CreateBook(ctx, model.Book{
			Title: "Atlas", Author: "Netter", Type: model.BookTypeReference,
			Category: "medical", DurationType: model.DurationSemester, Available: true,
		})
		require.NoError(t, err)
		st, err := r.CreateStudent(ctx, model.Student{AdmissionNumber: "33334444", Name: "Cy", Course: "Med"})
		require.NoError(t, err)
		now := time.Now().UTC()
		_, err = r.CreateIssue(ctx, model.Issue{StudentID: st.ID, BookID: book.ID, IssueDate: now, DueDate: now})
		require.NoError(t, err)

		require.NoError(t, r.DeleteStudent(ctx, st.ID))
		stored, err := r.GetBook(ctx, book.ID)
		require.NoError(t, err)
		require.True(t, stored.Available)
		open, err := r.CountOpenIssues(ctx)
		require.NoError(t, err)
		require.Zero(t, open)
		require.ErrorIs(t, r.DeleteStudent(ctx, st.ID), errs.ErrNotFound)
	})
}

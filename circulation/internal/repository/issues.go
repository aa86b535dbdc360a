package repository

import (
	"context"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

var issueColumns = []string{
	"id", "student_id", "book_id", "issue_date", "due_date",
	"return_date", "fine", "returned", "issue_duration",
}

// CreateIssue locks the book row, checks availability, inserts the issue and
// marks the book unavailable. Concurrent issuers of one book queue on the row
// lock and all but the first see it unavailable.
func (r *repository) CreateIssue(ctx context.Context, issue model.Issue) (model.Issue, error) {
	var created model.Issue
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var available bool
		err := tx.QueryRow(ctx, `select available from books where id = $1 for update`, issue.BookID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("book %d not found", issue.BookID)
		}
		if err != nil {
			return err
		}
		if !available {
			return errs.Conflict("book %d is not available", issue.BookID)
		}

		var student int64
		err = tx.QueryRow(ctx, `select id from students where id = $1 for share`, issue.StudentID).Scan(&student)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("student %d not found", issue.StudentID)
		}
		if err != nil {
			return err
		}

		query, args, err := qb.Insert(issuesTableName).
			Columns("student_id", "book_id", "issue_date", "due_date", "fine", "returned", "issue_duration").
			Values(issue.StudentID, issue.BookID, issue.IssueDate, issue.DueDate, 0.0, false, issue.IssueDuration).
			Suffix("returning " + strings.Join(issueColumns, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		if created, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Issue]); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `update books set available = false where id = $1 and available`, issue.BookID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.Conflict("book %d is not available", issue.BookID)
		}
		return nil
	})
	if err != nil {
		return model.Issue{}, r.classify(err, "CreateIssue")
	}
	return created, nil
}

// CloseIssue locks the issue, lets closeFn fill in the return, persists it and
// releases the book, all in one transaction.
func (r *repository) CloseIssue(ctx context.Context, id int64, closeFn CloseFunc) (model.Issue, error) {
	var closed model.Issue
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := qb.Select(issueColumns...).
			From(issuesTableName).
			Where(sq.Eq{"id": id}).
			Suffix("for update").
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		issue, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Issue])
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("issue %d not found", id)
		}
		if err != nil {
			return err
		}

		if closed, err = closeFn(issue); err != nil {
			return err
		}

		const closeIssue = `
update issues set return_date = @return_date, returned = true, fine = @fine
where id = @id and not returned`
		tag, err := tx.Exec(ctx, closeIssue, pgx.NamedArgs{
			"id":          id,
			"return_date": closed.ReturnDate,
			"fine":        closed.Fine,
		})
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.Conflict("issue %d is already returned", id)
		}

		_, err = tx.Exec(ctx, `update books set available = true where id = $1`, issue.BookID)
		return err
	})
	if err != nil {
		return model.Issue{}, r.classify(err, "CloseIssue")
	}
	return closed, nil
}

func (r *repository) GetIssue(ctx context.Context, id int64) (model.Issue, error) {
	query, args, err := qb.Select(issueColumns...).
		From(issuesTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Issue{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Issue{}, r.classify(err, "GetIssue")
	}
	issue, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Issue])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Issue{}, errs.NotFound("issue %d not found", id)
	}
	if err != nil {
		return model.Issue{}, r.classify(err, "GetIssue")
	}
	return issue, nil
}

func (r *repository) ListIssues(ctx context.Context, filter model.IssueFilter) ([]model.Issue, error) {
	q := qb.Select(issueColumns...).From(issuesTableName)
	if filter.StudentID != nil {
		q = q.Where(sq.Eq{"student_id": *filter.StudentID})
	}
	if filter.BookID != nil {
		q = q.Where(sq.Eq{"book_id": *filter.BookID})
	}
	if filter.OpenOnly {
		q = q.Where(sq.Eq{"returned": false})
	}
	if filter.WithFine {
		q = q.Where(sq.Gt{"fine": 0})
	}
	query, args, err := q.OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.classify(err, "ListIssues")
	}
	issues, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Issue])
	if err != nil {
		return nil, r.classify(err, "ListIssues")
	}
	return issues, nil
}

// UpdateFines stores recomputed fines of open issues. Closed issues are left
// alone: their fine was fixed at return. Rows are updated in id order so
// concurrent refreshes lock them in the same sequence.
func (r *repository) UpdateFines(ctx context.Context, fines map[int64]float64) error {
	if len(fines) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, id := range sortedIDs(fines) {
			batch.Queue(`update issues set fine = @fine where id = @id and not returned`,
				pgx.NamedArgs{"id": id, "fine": fines[id]})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return r.classify(err, "UpdateFines")
}

func (r *repository) CountOpenIssues(ctx context.Context) (int, error) {
	n, err := count(ctx, r.db, qb.Select("count(*)").From(issuesTableName).Where(sq.Eq{"returned": false}))
	if err != nil {
		return 0, r.classify(err, "CountOpenIssues")
	}
	return n, nil
}

func sortedIDs(fines map[int64]float64) []int64 {
	ids := make([]int64, 0, len(fines))
	for id := range fines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

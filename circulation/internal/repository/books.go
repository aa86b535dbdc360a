package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/allocator"
	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

var bookColumns = []string{
	"id", "book_code", "barcode", "title", "author", "book_type", "category",
	"course", "duration_type", "duration_days", "available", "created_at",
}

// CreateBook allocates the next code of the book's category and inserts the
// book in one transaction. The advisory lock serializes allocators of the
// same prefix across processes; the unique constraints are the last line.
func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	prefix := allocator.CategoryCode(book.Category)
	var created model.Book
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, "book_code:"+prefix); err != nil {
			return errors.Wrap(err, "advisory lock")
		}

		query, args, err := qb.Select("book_code").
			From(booksTableName).
			Where(sq.Like{"book_code": prefix + "%"}).
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return errors.Wrap(err, "pgx.CollectRows")
		}

		code, err := allocator.NextCode(prefix, codes)
		if err != nil {
			return err
		}
		book.BookCode = code
		book.Barcode = allocator.Barcode(code)

		query, args, err = qb.Insert(booksTableName).
			Columns("book_code", "barcode", "title", "author", "book_type", "category",
				"course", "duration_type", "duration_days", "available").
			Values(book.BookCode, book.Barcode, book.Title, book.Author, book.Type, book.Category,
				book.Course, book.DurationType, book.DurationDays, true).
			Suffix("returning " + strings.Join(bookColumns, ", ")).
			ToSql()
		if err != nil {
			return err
		}
		rows, err = tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		created, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
		return err
	})
	if err != nil {
		return model.Book{}, r.classify(err, "CreateBook")
	}
	r.log.Debug("book created", zap.Int64("id", created.ID), zap.String("code", created.BookCode))
	return created, nil
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	book, err := r.getBook(ctx, r.db, sq.Eq{"id": id})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Book{}, errs.NotFound("book %d not found", id)
	}
	if err != nil {
		return model.Book{}, r.classify(err, "GetBook")
	}
	return book, nil
}

func (r *repository) GetBookByToken(ctx context.Context, token string) (model.Book, error) {
	book, err := r.getBook(ctx, r.db, sq.Or{sq.Eq{"book_code": token}, sq.Eq{"barcode": token}})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Book{}, errs.NotFound("no book with code or barcode %q", token)
	}
	if err != nil {
		return model.Book{}, r.classify(err, "GetBookByToken")
	}
	return book, nil
}

func (r *repository) getBook(ctx context.Context, q querier, pred sq.Sqlizer) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return model.Book{}, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
}

func (r *repository) ListBooks(ctx context.Context, filter model.BookFilter) ([]model.Book, error) {
	q := qb.Select(bookColumns...).From(booksTableName)
	if s := strings.TrimSpace(filter.Query); s != "" {
		p := containsPattern(s)
		q = q.Where(sq.Or{
			sq.ILike{"title": p},
			sq.ILike{"author": p},
			sq.ILike{"book_code": p},
			sq.ILike{"barcode": p},
		})
	}
	if filter.AvailableOnly {
		q = q.Where(sq.Eq{"available": true})
	}
	query, args, err := q.OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.classify(err, "ListBooks")
	}
	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return nil, r.classify(err, "ListBooks")
	}
	return books, nil
}

// DeleteBook refuses while the book is on loan and drops its closed history.
func (r *repository) DeleteBook(ctx context.Context, id int64) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `select id from books where id = $1 for update`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("book %d not found", id)
		}
		if err != nil {
			return err
		}

		var open bool
		if err = tx.QueryRow(ctx,
			`select exists(select 1 from issues where book_id = $1 and not returned)`, id).Scan(&open); err != nil {
			return err
		}
		if open {
			return errs.ReferentialIntegrity("book %d is currently issued", id)
		}

		if _, err = tx.Exec(ctx, `delete from issues where book_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `delete from books where id = $1`, id)
		return err
	})
	return r.classify(err, "DeleteBook")
}

func (r *repository) CountBooks(ctx context.Context, availableOnly bool) (int, error) {
	b := qb.Select("count(*)").From(booksTableName)
	if availableOnly {
		b = b.Where(sq.Eq{"available": true})
	}
	n, err := count(ctx, r.db, b)
	if err != nil {
		return 0, r.classify(err, "CountBooks")
	}
	return n, nil
}

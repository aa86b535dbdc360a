package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

var studentColumns = []string{"id", "admission_number", "name", "email", "course", "created_at"}

func (r *repository) CreateStudent(ctx context.Context, student model.Student) (model.Student, error) {
	query, args, err := qb.Insert(studentsTableName).
		Columns("admission_number", "name", "email", "course").
		Values(student.AdmissionNumber, student.Name, student.Email, student.Course).
		Suffix("returning " + strings.Join(studentColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Student{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Student{}, r.classify(err, "CreateStudent")
	}
	created, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Student])
	if err != nil {
		return model.Student{}, r.classify(err, "CreateStudent")
	}
	return created, nil
}

func (r *repository) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	s, err := r.getStudent(ctx, sq.Eq{"id": id})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Student{}, errs.NotFound("student %d not found", id)
	}
	if err != nil {
		return model.Student{}, r.classify(err, "GetStudent")
	}
	return s, nil
}

func (r *repository) GetStudentByAdmission(ctx context.Context, admissionNumber string) (model.Student, error) {
	s, err := r.getStudent(ctx, sq.Eq{"admission_number": admissionNumber})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Student{}, errs.NotFound("no student with admission number %q", admissionNumber)
	}
	if err != nil {
		return model.Student{}, r.classify(err, "GetStudentByAdmission")
	}
	return s, nil
}

func (r *repository) getStudent(ctx context.Context, pred sq.Sqlizer) (model.Student, error) {
	query, args, err := qb.Select(studentColumns...).
		From(studentsTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Student{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Student{}, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Student])
}

func (r *repository) ListStudents(ctx context.Context, search string) ([]model.Student, error) {
	q := qb.Select(studentColumns...).From(studentsTableName)
	if s := strings.TrimSpace(search); s != "" {
		p := containsPattern(s)
		q = q.Where(sq.Or{
			sq.ILike{"name": p},
			sq.ILike{"admission_number": p},
			sq.ILike{"course": p},
		})
	}
	query, args, err := q.OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.classify(err, "ListStudents")
	}
	students, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Student])
	if err != nil {
		return nil, r.classify(err, "ListStudents")
	}
	return students, nil
}

// DeleteStudent removes the student and, through the cascade, every issue of
// theirs. Books still on loan to them become available again.
func (r *repository) DeleteStudent(ctx context.Context, id int64) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `select id from students where id = $1 for update`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.NotFound("student %d not found", id)
		}
		if err != nil {
			return err
		}

		const releaseBooks = `
update books set available = true
where id in (select book_id from issues where student_id = @student_id and not returned)`
		if _, err = tx.Exec(ctx, releaseBooks, pgx.NamedArgs{"student_id": id}); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `delete from students where id = $1`, id)
		return err
	})
	return r.classify(err, "DeleteStudent")
}

func (r *repository) CountStudents(ctx context.Context) (int, error) {
	n, err := count(ctx, r.db, qb.Select("count(*)").From(studentsTableName))
	if err != nil {
		return 0, r.classify(err, "CountStudents")
	}
	return n, nil
}

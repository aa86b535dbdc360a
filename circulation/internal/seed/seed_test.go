package seed_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/seed"
)

type fakeService struct {
	mu       sync.Mutex
	books    []model.Book
	students []model.Student
	failOn   string
}

func (f *fakeService) CreateBook(_ context.Context, req model.CreateBookRequest) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Title == f.failOn {
		return model.Book{}, errors.New("boom")
	}
	b := model.Book{ID: int64(len(f.books) + 1), Title: req.Title}
	f.books = append(f.books, b)
	return b, nil
}

func (f *fakeService) CreateStudent(_ context.Context, req model.CreateStudentRequest) (model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.Student{ID: int64(len(f.students) + 1), Name: req.Name}
	f.students = append(f.students, s)
	return s, nil
}

func (f *fakeService) SearchBooks(context.Context, string) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Book(nil), f.books...), nil
}

func (f *fakeService) SearchStudents(context.Context, string) ([]model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Student(nil), f.students...), nil
}

func TestDefault(t *testing.T) {
	t.Parallel()
	data, err := seed.Default()
	require.NoError(t, err)
	require.Len(t, data.Books, 20)
	require.Len(t, data.Students, 15)
	for _, b := range data.Books {
		require.NotEmpty(t, b.Title)
		require.NotEmpty(t, b.Category)
		if b.DurationType == model.DurationSpecific {
			require.NotNil(t, b.DurationDays)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	data, err := seed.Default()
	require.NoError(t, err)
	svc := &fakeService{}

	res, err := seed.Run(context.Background(), svc, data, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, seed.Result{Books: 20, Students: 15}, res)

	res, err = seed.Run(context.Background(), svc, data, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, seed.Result{}, res)
	require.Len(t, svc.books, 20)
	require.Len(t, svc.students, 15)
}

func TestRun_Error(t *testing.T) {
	t.Parallel()
	data, err := seed.Default()
	require.NoError(t, err)
	svc := &fakeService{failOn: "Clean Code"}

	_, err = seed.Run(context.Background(), svc, data, zap.NewNop())
	require.ErrorContains(t, err, "Clean Code")
}

// Package seed loads the initial catalog and roster into an empty store.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

//go:embed data.json
var defaultData []byte

type Data struct {
	Books    []model.CreateBookRequest    `json:"books"`
	Students []model.CreateStudentRequest `json:"students"`
}

type Service interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	CreateStudent(ctx context.Context, req model.CreateStudentRequest) (model.Student, error)
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	SearchStudents(ctx context.Context, query string) ([]model.Student, error)
}

type Result struct {
	Books    int
	Students int
}

const parallelism = 4

func Default() (Data, error) {
	var d Data
	if err := json.Unmarshal(defaultData, &d); err != nil {
		return Data{}, errors.Wrap(err, "decode seed data")
	}
	return d, nil
}

// Run creates the seed books when the catalog is empty and the seed students
// when the roster is empty. Each half is skipped independently.
func Run(ctx context.Context, svc Service, data Data, log *zap.Logger) (Result, error) {
	log = log.Named("seed")
	var res Result

	books, err := svc.SearchBooks(ctx, "")
	if err != nil {
		return res, err
	}
	if len(books) > 0 {
		log.Info("catalog is not empty, skipping books", zap.Int("books", len(books)))
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for _, req := range data.Books {
			req := req
			g.Go(func() error {
				if _, err := svc.CreateBook(gctx, req); err != nil {
					return errors.Wrapf(err, "seed book %q", req.Title)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
		res.Books = len(data.Books)
		log.Info("books seeded", zap.Int("count", res.Books))
	}

	students, err := svc.SearchStudents(ctx, "")
	if err != nil {
		return res, err
	}
	if len(students) > 0 {
		log.Info("roster is not empty, skipping students", zap.Int("students", len(students)))
		return res, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, req := range data.Students {
		req := req
		g.Go(func() error {
			if _, err := svc.CreateStudent(gctx, req); err != nil {
				return errors.Wrapf(err, "seed student %q", req.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Students = len(data.Students)
	log.Info("students seeded", zap.Int("count", res.Students))
	return res, nil
}

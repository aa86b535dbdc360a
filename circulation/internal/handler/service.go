package handler

import (
	"context"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

var (
	_ CatalogService     = (*service.Service)(nil)
	_ RosterService      = (*service.Service)(nil)
	_ CirculationService = (*service.Service)(nil)
)

type CatalogService interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	FindBookByCodeOrBarcode(ctx context.Context, token string) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	ListAvailableBooks(ctx context.Context) ([]model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

type RosterService interface {
	CreateStudent(ctx context.Context, req model.CreateStudentRequest) (model.Student, error)
	GetStudent(ctx context.Context, id int64) (model.Student, error)
	SearchStudents(ctx context.Context, query string) ([]model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
}

type CirculationService interface {
	IssueBook(ctx context.Context, req model.IssueBookRequest) (model.Issue, error)
	IssueByBarcode(ctx context.Context, req model.ScanIssueRequest) (model.Issue, error)
	ReturnBook(ctx context.Context, issueID int64) (model.IssueView, error)
	ReturnByBarcode(ctx context.Context, token string) (model.IssueView, error)
	GetIssue(ctx context.Context, id int64) (model.IssueView, error)
	ListOpenIssues(ctx context.Context) ([]model.IssueView, error)
	ListStudentIssues(ctx context.Context, studentID int64) ([]model.IssueView, error)
	FineSummary(ctx context.Context) (model.FineSummary, error)
	EstimateFine(req model.EstimateFineRequest) (model.FineEstimate, error)
	Stats(ctx context.Context) (model.Stats, error)
}

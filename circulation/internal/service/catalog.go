package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/allocator"
	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/events"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

// CreateBook validates req and stores a new available book under a freshly
// allocated code and barcode. Allocation within a category is serialized; a
// collision that still slips through is retried a bounded number of times.
func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	book, err := newBook(req)
	if err != nil {
		return model.Book{}, err
	}

	prefix := allocator.CategoryCode(book.Category)
	unlock := s.codeLocks.Lock(prefix)
	defer unlock()

	for attempt := 0; ; attempt++ {
		created, err := s.repo.CreateBook(ctx, book)
		if err == nil {
			s.metrics.BookCreated()
			s.publish(ctx, events.Event{Type: events.BookCreated, BookID: created.ID, BookCode: created.BookCode})
			s.log.Debug("book created", zap.Int64("id", created.ID), zap.String("code", created.BookCode))
			return created, nil
		}
		if !errors.Is(err, errs.ErrBookCodeTaken) || attempt >= s.allocRetries {
			if errors.Is(err, errs.ErrConflict) {
				s.metrics.Conflict("create_book")
			}
			return model.Book{}, err
		}
		s.log.Warn("book code collision, retrying",
			zap.String("prefix", prefix), zap.Int("attempt", attempt+1))
	}
}

func newBook(req model.CreateBookRequest) (model.Book, error) {
	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	category := strings.TrimSpace(req.Category)
	if title == "" || author == "" || req.Type == "" || category == "" {
		return model.Book{}, errs.Validation("title, author, type and category are required")
	}
	switch req.Type {
	case model.BookTypeTextbook, model.BookTypeReference:
	default:
		return model.Book{}, errs.Validation("unknown book type %q", req.Type)
	}
	if err := maxLen("title", title, model.MaxTitleLen); err != nil {
		return model.Book{}, err
	}
	if err := maxLen("author", author, model.MaxAuthorLen); err != nil {
		return model.Book{}, err
	}

	book := model.Book{
		Title:        title,
		Author:       author,
		Type:         req.Type,
		Category:     model.NormalizeCategory(category),
		DurationType: req.DurationType,
		Available:    true,
	}
	if req.Course != nil {
		if course := strings.TrimSpace(*req.Course); course != "" {
			if err := maxLen("course", course, model.MaxCourseLen); err != nil {
				return model.Book{}, err
			}
			book.Course = &course
		}
	}

	switch book.DurationType {
	case "":
		book.DurationType = model.DurationSemester
	case model.DurationSemester:
	case model.DurationSpecific:
		if req.DurationDays == nil || *req.DurationDays <= 0 {
			return model.Book{}, errs.Validation("duration days must be a positive number for specific-duration books")
		}
		days := *req.DurationDays
		book.DurationDays = &days
	default:
		return model.Book{}, errs.Validation("unknown duration type %q", req.DurationType)
	}
	return book, nil
}

func (s *Service) FindBookByCodeOrBarcode(ctx context.Context, token string) (model.Book, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Book{}, errs.Validation("book code or barcode is required")
	}
	return s.repo.GetBookByToken(ctx, token)
}

func (s *Service) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// SearchBooks matches query case-insensitively against title, author, code
// and barcode. An empty query lists the whole catalog.
func (s *Service) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, model.BookFilter{Query: strings.TrimSpace(query)})
}

func (s *Service) ListAvailableBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx, model.BookFilter{AvailableOnly: true})
}

// DeleteBook removes a book with no open issue, together with its closed
// issue history.
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.BookDeleted, BookID: id})
	return nil
}

package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/events"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/circulation/internal/policy"
)

// IssueBook lends an available book to a student. The availability check and
// the flip to unavailable happen in the same transaction in the repository,
// so of several concurrent requests for one book exactly one succeeds.
func (s *Service) IssueBook(ctx context.Context, req model.IssueBookRequest) (model.Issue, error) {
	if _, err := s.repo.GetStudent(ctx, req.StudentID); err != nil {
		return model.Issue{}, err
	}
	book, err := s.repo.GetBook(ctx, req.BookID)
	if err != nil {
		return model.Issue{}, err
	}
	if !book.Available {
		s.metrics.Conflict("issue_book")
		return model.Issue{}, errs.Conflict("book %s is not available", book.BookCode)
	}
	if req.IssueDuration != nil && !policy.ValidIssueDuration(*req.IssueDuration) {
		return model.Issue{}, errs.Validation("issue duration must be between %d and %d days",
			policy.MinIssueDuration, policy.MaxIssueDuration)
	}

	now := s.clock.Now()
	issue := model.Issue{
		StudentID:     req.StudentID,
		BookID:        req.BookID,
		IssueDate:     now,
		DueDate:       s.policy.DueDate(now, book, req.IssueDuration),
		IssueDuration: req.IssueDuration,
	}
	created, err := s.repo.CreateIssue(ctx, issue)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			s.metrics.Conflict("issue_book")
		}
		return model.Issue{}, err
	}

	s.metrics.BookIssued()
	s.publish(ctx, events.Event{
		Type: events.IssueCreated, IssueID: created.ID,
		BookID: created.BookID, BookCode: book.BookCode, StudentID: created.StudentID,
	})
	s.log.Debug("book issued",
		zap.Int64("issue", created.ID), zap.Int64("book", created.BookID), zap.Time("due", created.DueDate))
	return created, nil
}

// IssueByBarcode resolves a student by admission number and a book by code or
// barcode, then issues it.
func (s *Service) IssueByBarcode(ctx context.Context, req model.ScanIssueRequest) (model.Issue, error) {
	number := strings.TrimSpace(req.AdmissionNumber)
	if number == "" {
		return model.Issue{}, errs.Validation("admission number is required")
	}
	student, err := s.repo.GetStudentByAdmission(ctx, number)
	if err != nil {
		return model.Issue{}, err
	}
	book, err := s.FindBookByCodeOrBarcode(ctx, req.Token)
	if err != nil {
		return model.Issue{}, err
	}
	return s.IssueBook(ctx, model.IssueBookRequest{
		StudentID:     student.ID,
		BookID:        book.ID,
		IssueDuration: req.IssueDuration,
	})
}

// ReturnBook closes an open issue, fixing its fine at the return instant, and
// makes the book available again.
func (s *Service) ReturnBook(ctx context.Context, issueID int64) (model.IssueView, error) {
	now := s.clock.Now()
	closed, err := s.repo.CloseIssue(ctx, issueID, func(issue model.Issue) (model.Issue, error) {
		if issue.Returned {
			return model.Issue{}, errs.Conflict("issue %d is already returned", issue.ID)
		}
		returnDate := now
		issue.ReturnDate = &returnDate
		issue.Returned = true
		issue.Fine = s.policy.Fine(issue, now)
		return issue, nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			s.metrics.Conflict("return_book")
		}
		return model.IssueView{}, err
	}

	s.metrics.BookReturned(closed.Fine)
	s.publish(ctx, events.Event{
		Type: events.IssueReturned, IssueID: closed.ID,
		BookID: closed.BookID, StudentID: closed.StudentID, Fine: closed.Fine,
	})
	s.log.Debug("book returned", zap.Int64("issue", closed.ID), zap.Float64("fine", closed.Fine))
	return s.policy.View(closed, now), nil
}

// ReturnByBarcode returns the open issue of the book identified by code or
// barcode.
func (s *Service) ReturnByBarcode(ctx context.Context, token string) (model.IssueView, error) {
	book, err := s.FindBookByCodeOrBarcode(ctx, token)
	if err != nil {
		return model.IssueView{}, err
	}
	open, err := s.repo.ListIssues(ctx, model.IssueFilter{BookID: &book.ID, OpenOnly: true})
	if err != nil {
		return model.IssueView{}, err
	}
	if len(open) == 0 {
		return model.IssueView{}, errs.NotFound("book %s has no open issue", book.BookCode)
	}
	return s.ReturnBook(ctx, open[0].ID)
}

func (s *Service) CalculateFine(issue model.Issue) float64 {
	return s.policy.Fine(issue, s.clock.Now())
}

func (s *Service) DaysLate(issue model.Issue) int {
	return s.policy.DaysLate(issue, s.clock.Now())
}

func (s *Service) DaysIssued(issue model.Issue) int {
	return policy.DaysIssued(issue, s.clock.Now())
}

func (s *Service) GraceDaysRemaining(issue model.Issue) int {
	return s.policy.GraceDaysRemaining(issue, s.clock.Now())
}

func (s *Service) GetIssue(ctx context.Context, id int64) (model.IssueView, error) {
	issue, err := s.repo.GetIssue(ctx, id)
	if err != nil {
		return model.IssueView{}, err
	}
	return s.policy.View(issue, s.clock.Now()), nil
}

func (s *Service) ListOpenIssues(ctx context.Context) ([]model.IssueView, error) {
	issues, err := s.repo.ListIssues(ctx, model.IssueFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	return s.views(issues), nil
}

func (s *Service) ListStudentIssues(ctx context.Context, studentID int64) ([]model.IssueView, error) {
	if _, err := s.repo.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	issues, err := s.repo.ListIssues(ctx, model.IssueFilter{StudentID: &studentID})
	if err != nil {
		return nil, err
	}
	return s.views(issues), nil
}

func (s *Service) views(issues []model.Issue) []model.IssueView {
	now := s.clock.Now()
	out := make([]model.IssueView, 0, len(issues))
	for _, issue := range issues {
		out = append(out, s.policy.View(issue, now))
	}
	return out
}

// RefreshFines persists the current fine of every open issue whose stored
// value is stale and reports how many were updated.
func (s *Service) RefreshFines(ctx context.Context) (int, error) {
	open, err := s.repo.ListIssues(ctx, model.IssueFilter{OpenOnly: true})
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	stale := make(map[int64]float64)
	for _, issue := range open {
		if fine := s.policy.Fine(issue, now); fine != issue.Fine {
			stale[issue.ID] = fine
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.repo.UpdateFines(ctx, stale); err != nil {
		return 0, err
	}
	s.log.Info("fines refreshed", zap.Int("updated", len(stale)))
	return len(stale), nil
}

// FineSummary lists every issue carrying a fine with the totals split into
// outstanding (open) and collected (returned).
func (s *Service) FineSummary(ctx context.Context) (model.FineSummary, error) {
	if _, err := s.RefreshFines(ctx); err != nil {
		return model.FineSummary{}, err
	}
	issues, err := s.repo.ListIssues(ctx, model.IssueFilter{WithFine: true})
	if err != nil {
		return model.FineSummary{}, err
	}
	summary := model.FineSummary{Issues: s.views(issues)}
	for _, v := range summary.Issues {
		summary.TotalFines += v.Fine
		if v.Returned {
			summary.TotalCollected += v.Fine
		} else {
			summary.TotalOutstanding += v.Fine
		}
	}
	return summary, nil
}

func (s *Service) EstimateFine(req model.EstimateFineRequest) (model.FineEstimate, error) {
	rate := s.policy.FineRatePerDay
	if req.FineRate != nil {
		rate = *req.FineRate
	}
	if req.DaysLate < 0 || rate < 0 {
		return model.FineEstimate{}, errs.Validation("days late and fine rate must not be negative")
	}
	return model.FineEstimate{
		DaysLate: req.DaysLate,
		FineRate: rate,
		Fine:     policy.EstimateFine(req.DaysLate, rate),
	}, nil
}

func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Books, err = s.repo.CountBooks(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		st.AvailableBooks, err = s.repo.CountBooks(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		st.Students, err = s.repo.CountStudents(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.OpenIssues, err = s.repo.CountOpenIssues(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Stats{}, err
	}
	return st, nil
}

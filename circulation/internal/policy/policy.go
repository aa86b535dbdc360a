// Package policy holds the loan-period and fine arithmetic. Every function
// takes "now" explicitly; callers capture it once per operation.
package policy

import (
	"time"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

const (
	DefaultDurationDays = 14
	GracePeriodDays     = 12
	FineRatePerDay      = 20.0

	MinIssueDuration = 1
	MaxIssueDuration = 365

	day = 24 * time.Hour
)

type Policy struct {
	DefaultDurationDays int
	GracePeriodDays     int
	FineRatePerDay      float64
}

func Default() Policy {
	return Policy{
		DefaultDurationDays: DefaultDurationDays,
		GracePeriodDays:     GracePeriodDays,
		FineRatePerDay:      FineRatePerDay,
	}
}

func ValidIssueDuration(days int) bool {
	return days >= MinIssueDuration && days <= MaxIssueDuration
}

// DueDate picks the loan period: explicit override, then the book's specific
// duration, then the default.
func (p Policy) DueDate(issueDate time.Time, book model.Book, override *int) time.Time {
	days := p.DefaultDurationDays
	switch {
	case override != nil:
		days = *override
	case book.DurationType == model.DurationSpecific && book.DurationDays != nil && *book.DurationDays > 0:
		days = *book.DurationDays
	}
	return issueDate.AddDate(0, 0, days)
}

func (p Policy) GraceEnd(issue model.Issue) time.Time {
	return issue.DueDate.AddDate(0, 0, p.GracePeriodDays)
}

// DaysLate counts whole days past the end of the grace period, measured at
// the return date or, for open issues, at now.
func (p Policy) DaysLate(issue model.Issue, now time.Time) int {
	ref := reference(issue, now)
	graceEnd := p.GraceEnd(issue)
	if !ref.After(graceEnd) {
		return 0
	}
	return WholeDays(ref.Sub(graceEnd))
}

func (p Policy) Fine(issue model.Issue, now time.Time) float64 {
	return float64(p.DaysLate(issue, now)) * p.FineRatePerDay
}

func (p Policy) GraceDaysRemaining(issue model.Issue, now time.Time) int {
	if issue.Returned {
		return 0
	}
	left := p.GraceEnd(issue).Sub(now)
	if left <= 0 {
		return 0
	}
	return WholeDays(left)
}

func DaysIssued(issue model.Issue, now time.Time) int {
	ref := reference(issue, now)
	if ref.Before(issue.IssueDate) {
		return 0
	}
	return WholeDays(ref.Sub(issue.IssueDate))
}

// View derives the day counts of issue at now and refreshes the fine of an
// open issue. Closed issues keep their stored fine.
func (p Policy) View(issue model.Issue, now time.Time) model.IssueView {
	if !issue.Returned {
		issue.Fine = p.Fine(issue, now)
	}
	return model.IssueView{
		Issue:              issue,
		DaysLate:           p.DaysLate(issue, now),
		DaysIssued:         DaysIssued(issue, now),
		GraceDaysRemaining: p.GraceDaysRemaining(issue, now),
	}
}

func EstimateFine(daysLate int, rate float64) float64 {
	return float64(daysLate) * rate
}

// WholeDays truncates d to full days.
func WholeDays(d time.Duration) int {
	return int(d / day)
}

func reference(issue model.Issue, now time.Time) time.Time {
	if issue.Returned && issue.ReturnDate != nil {
		return *issue.ReturnDate
	}
	return now
}

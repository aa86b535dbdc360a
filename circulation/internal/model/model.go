package model

import (
	"strings"
	"time"
)

type BookType string

const (
	BookTypeTextbook  BookType = "textbook"
	BookTypeReference BookType = "reference"
)

type DurationType string

const (
	DurationSemester DurationType = "semester"
	DurationSpecific DurationType = "specific"
)

const (
	CategoryGeneral     = "general"
	DefaultCategoryCode = "10"
)

// Column widths of the books and students tables.
const (
	MaxTitleLen  = 200
	MaxAuthorLen = 100
	MaxCourseLen = 100
	MaxNameLen   = 100
	MaxEmailLen  = 120
)

// CategoryCodes is the fixed category -> 2-digit book code prefix table.
var CategoryCodes = map[string]string{
	"technology":  "01",
	"medical":     "02",
	"science":     "03",
	"arts":        "04",
	"business":    "05",
	"engineering": "06",
	"mathematics": "07",
	"literature":  "08",
	"history":     "09",
	"general":     "10",
}

// NormalizeCategory lower-cases category and folds unknown values into general.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if _, ok := CategoryCodes[c]; !ok {
		return CategoryGeneral
	}
	return c
}

type Book struct {
	ID           int64        `json:"id" db:"id"`
	BookCode     string       `json:"bookCode" db:"book_code"`
	Barcode      string       `json:"barcode" db:"barcode"`
	Title        string       `json:"title" db:"title"`
	Author       string       `json:"author" db:"author"`
	Type         BookType     `json:"type" db:"book_type"`
	Category     string       `json:"category" db:"category"`
	Course       *string      `json:"course,omitempty" db:"course"`
	DurationType DurationType `json:"durationType" db:"duration_type"`
	DurationDays *int         `json:"durationDays,omitempty" db:"duration_days"`
	Available    bool         `json:"available" db:"available"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
}

type CreateBookRequest struct {
	Title        string       `json:"title" validate:"required,max=200"`
	Author       string       `json:"author" validate:"required,max=100"`
	Type         BookType     `json:"type" validate:"required,oneof=textbook reference"`
	Category     string       `json:"category" validate:"required"`
	Course       *string      `json:"course" validate:"omitempty,max=100"`
	DurationType DurationType `json:"durationType" validate:"omitempty,oneof=semester specific"`
	DurationDays *int         `json:"durationDays" validate:"omitempty,gt=0"`
}

type BookFilter struct {
	Query         string
	AvailableOnly bool
}

type Student struct {
	ID              int64     `json:"id" db:"id"`
	AdmissionNumber string    `json:"admissionNumber" db:"admission_number"`
	Name            string    `json:"name" db:"name"`
	Email           *string   `json:"email,omitempty" db:"email"`
	Course          string    `json:"course" db:"course"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

type CreateStudentRequest struct {
	Name            string  `json:"name" validate:"required,max=100"`
	Course          string  `json:"course" validate:"required,max=100"`
	Email           *string `json:"email" validate:"omitempty,max=120,email"`
	AdmissionNumber *string `json:"admissionNumber" validate:"omitempty,len=8,numeric"`
}

type Issue struct {
	ID            int64      `json:"id" db:"id"`
	StudentID     int64      `json:"studentId" db:"student_id"`
	BookID        int64      `json:"bookId" db:"book_id"`
	IssueDate     time.Time  `json:"issueDate" db:"issue_date"`
	DueDate       time.Time  `json:"dueDate" db:"due_date"`
	ReturnDate    *time.Time `json:"returnDate,omitempty" db:"return_date"`
	Fine          float64    `json:"fine" db:"fine"`
	Returned      bool       `json:"returned" db:"returned"`
	IssueDuration *int       `json:"issueDuration,omitempty" db:"issue_duration"`
}

// IssueView is an Issue with its derived day counts, all computed against
// the same instant.
type IssueView struct {
	Issue
	DaysLate           int `json:"daysLate"`
	DaysIssued         int `json:"daysIssued"`
	GraceDaysRemaining int `json:"graceDaysRemaining"`
}

type IssueFilter struct {
	StudentID *int64
	BookID    *int64
	OpenOnly  bool
	WithFine  bool
}

type IssueBookRequest struct {
	StudentID     int64 `json:"studentId" validate:"required"`
	BookID        int64 `json:"bookId" validate:"required"`
	IssueDuration *int  `json:"issueDuration" validate:"omitempty,min=1,max=365"`
}

type ScanIssueRequest struct {
	AdmissionNumber string `json:"admissionNumber" validate:"required"`
	Token           string `json:"token" validate:"required"`
	IssueDuration   *int   `json:"issueDuration" validate:"omitempty,min=1,max=365"`
}

type ScanReturnRequest struct {
	Token string `json:"token" validate:"required"`
}

type FineSummary struct {
	Issues           []IssueView `json:"issues"`
	TotalFines       float64     `json:"totalFines"`
	TotalOutstanding float64     `json:"totalOutstanding"`
	TotalCollected   float64     `json:"totalCollected"`
}

type EstimateFineRequest struct {
	DaysLate int      `json:"daysLate" validate:"min=0"`
	FineRate *float64 `json:"fineRate" validate:"omitempty,min=0"`
}

type FineEstimate struct {
	DaysLate int     `json:"daysLate"`
	FineRate float64 `json:"fineRate"`
	Fine     float64 `json:"fine"`
}

type Stats struct {
	Books          int `json:"books"`
	AvailableBooks int `json:"availableBooks"`
	Students       int `json:"students"`
	OpenIssues     int `json:"openIssues"`
}

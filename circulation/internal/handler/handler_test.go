package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/handler"
	"github.com/Astemirdum/library-circulation/circulation/internal/metrics"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
	"github.com/Astemirdum/library-circulation/pkg/validate"

	service_mocks "github.com/Astemirdum/library-circulation/circulation/internal/handler/mocks"
)

type mocks struct {
	catalog     *service_mocks.MockCatalogService
	roster      *service_mocks.MockRosterService
	circulation *service_mocks.MockCirculationService
}

type response struct {
	expectedCode int
	expectedBody string
}

func setup(t *testing.T) (*handler.Handler, mocks) {
	t.Helper()
	c := gomock.NewController(t)
	m := mocks{
		catalog:     service_mocks.NewMockCatalogService(c),
		roster:      service_mocks.NewMockRosterService(c),
		circulation: service_mocks.NewMockCirculationService(c),
	}
	log := zap.NewExample().Named("test")
	return handler.New(m.catalog, m.roster, m.circulation, nil, log), m
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, http.NoBody)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func check(t *testing.T, w *httptest.ResponseRecorder, want response) {
	t.Helper()
	require.Equal(t, want.expectedCode, w.Code)
	if want.expectedBody != "" {
		require.Equal(t, want.expectedBody, strings.Trim(w.Body.String(), "\n"))
	}
}

func TestHandler_CreateBook(t *testing.T) {
	t.Parallel()
	type mockBehavior func(m mocks)

	tests := []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"title":"Go","author":"Pike","type":"textbook","category":"Technology"}`,
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().
					CreateBook(gomock.Any(), model.CreateBookRequest{
						Title: "Go", Author: "Pike", Type: model.BookTypeTextbook, Category: "Technology",
					}).
					Return(model.Book{
						ID: 1, BookCode: "010001", Barcode: "LIB010001", Title: "Go", Author: "Pike",
						Type: model.BookTypeTextbook, Category: "technology",
						DurationType: model.DurationSemester, Available: true,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"bookCode":"010001","barcode":"LIB010001","title":"Go","author":"Pike","type":"textbook","category":"technology","durationType":"semester","available":true,"createdAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:         "err. malformed body",
			body:         `{"title":`,
			mockBehavior: func(m mocks) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"invalid request body"}`,
			},
		},
		{
			name:         "err. missing fields",
			body:         `{"title":"Go"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name:         "err. unknown type",
			body:         `{"title":"Go","author":"Pike","type":"comic","category":"arts"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "err. specific duration rejected by service",
			body: `{"title":"Go","author":"Pike","type":"textbook","category":"arts","durationType":"specific"}`,
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().CreateBook(gomock.Any(), gomock.Any()).
					Return(model.Book{}, errs.Validation("duration days must be a positive number for specific-duration books"))
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"duration days must be a positive number for specific-duration books"}`,
			},
		},
		{
			name: "err. category full",
			body: `{"title":"Go","author":"Pike","type":"textbook","category":"arts"}`,
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().CreateBook(gomock.Any(), gomock.Any()).
					Return(model.Book{}, errs.Capacity("category 04 has no free book codes left"))
			},
			response: response{
				expectedCode: http.StatusUnprocessableEntity,
				expectedBody: `{"message":"category 04 has no free book codes left"}`,
			},
		},
		{
			name: "err. internal",
			body: `{"title":"Go","author":"Pike","type":"textbook","category":"arts"}`,
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().CreateBook(gomock.Any(), gomock.Any()).
					Return(model.Book{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"internal error"}`,
			},
		},
		{
			name: "err. storage detail stays in the log",
			body: `{"title":"Go","author":"Pike","type":"textbook","category":"arts"}`,
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().CreateBook(gomock.Any(), gomock.Any()).
					Return(model.Book{}, errs.Storage(errors.New("connection reset by peer (SQLSTATE 08006)"), "CreateBook"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"internal error"}`,
			},
		},
		{
			name:         "err. title wider than column",
			body:         `{"title":"` + strings.Repeat("t", model.MaxTitleLen+1) + `","author":"Pike","type":"textbook","category":"arts"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := setup(t)
			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/books", h.CreateBook)

			tt.mockBehavior(m)
			w := serve(e, http.MethodPost, "/api/v1/books", tt.body)
			check(t, w, tt.response)
		})
	}
}

func TestHandler_Books(t *testing.T) {
	t.Parallel()
	type mockBehavior func(m mocks)

	tests := []struct {
		name         string
		method       string
		target       string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "search",
			method: http.MethodGet,
			target: "/api/v1/books?q=pike",
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().SearchBooks(gomock.Any(), "pike").Return([]model.Book{}, nil)
			},
			response: response{expectedCode: http.StatusOK, expectedBody: `[]`},
		},
		{
			name:   "available",
			method: http.MethodGet,
			target: "/api/v1/books/available",
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().ListAvailableBooks(gomock.Any()).Return([]model.Book{}, nil)
			},
			response: response{expectedCode: http.StatusOK, expectedBody: `[]`},
		},
		{
			name:   "lookup not found",
			method: http.MethodGet,
			target: "/api/v1/books/lookup/LIB999999",
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().FindBookByCodeOrBarcode(gomock.Any(), "LIB999999").
					Return(model.Book{}, errs.NotFound("book LIB999999 not found"))
			},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"book LIB999999 not found"}`},
		},
		{
			name:         "get invalid id",
			method:       http.MethodGet,
			target:       "/api/v1/books/abc",
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"id is invalid"}`},
		},
		{
			name:   "delete ok",
			method: http.MethodDelete,
			target: "/api/v1/books/3",
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().DeleteBook(gomock.Any(), int64(3)).Return(nil)
			},
			response: response{expectedCode: http.StatusNoContent},
		},
		{
			name:   "delete with open issue",
			method: http.MethodDelete,
			target: "/api/v1/books/3",
			mockBehavior: func(m mocks) {
				m.catalog.EXPECT().DeleteBook(gomock.Any(), int64(3)).
					Return(errs.ReferentialIntegrity("book 3 has an open issue"))
			},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"book 3 has an open issue"}`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := setup(t)
			e := echo.New()
			e.GET("/api/v1/books", h.SearchBooks)
			e.GET("/api/v1/books/available", h.ListAvailableBooks)
			e.GET("/api/v1/books/lookup/:token", h.LookupBook)
			e.GET("/api/v1/books/:id", h.GetBook)
			e.DELETE("/api/v1/books/:id", h.DeleteBook)

			tt.mockBehavior(m)
			check(t, serve(e, tt.method, tt.target, ""), tt.response)
		})
	}
}

func TestHandler_CreateStudent(t *testing.T) {
	t.Parallel()
	type mockBehavior func(m mocks)

	tests := []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"name":"Ann","course":"CS","admissionNumber":"12345678"}`,
			mockBehavior: func(m mocks) {
				num := "12345678"
				m.roster.EXPECT().
					CreateStudent(gomock.Any(), model.CreateStudentRequest{Name: "Ann", Course: "CS", AdmissionNumber: &num}).
					Return(model.Student{ID: 1, AdmissionNumber: num, Name: "Ann", Course: "CS"}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"admissionNumber":"12345678","name":"Ann","course":"CS","createdAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:         "err. bad admission number",
			body:         `{"name":"Ann","course":"CS","admissionNumber":"12ab"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name:         "err. name wider than column",
			body:         `{"name":"` + strings.Repeat("n", model.MaxNameLen+1) + `","course":"CS"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name:         "err. bad email",
			body:         `{"name":"Ann","course":"CS","email":"nope"}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "err. duplicate",
			body: `{"name":"Ann","course":"CS","admissionNumber":"12345678"}`,
			mockBehavior: func(m mocks) {
				m.roster.EXPECT().CreateStudent(gomock.Any(), gomock.Any()).
					Return(model.Student{}, errs.Wrap(errs.ErrAdmissionNumberTaken, "admission number already exists"))
			},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"admission number already exists"}`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := setup(t)
			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/students", h.CreateStudent)

			tt.mockBehavior(m)
			check(t, serve(e, http.MethodPost, "/api/v1/students", tt.body), tt.response)
		})
	}
}

func TestHandler_Students(t *testing.T) {
	t.Parallel()
	h, m := setup(t)
	e := echo.New()
	e.GET("/api/v1/students", h.SearchStudents)
	e.GET("/api/v1/students/:id", h.GetStudent)
	e.GET("/api/v1/students/:id/issues", h.ListStudentIssues)
	e.DELETE("/api/v1/students/:id", h.DeleteStudent)

	m.roster.EXPECT().SearchStudents(gomock.Any(), "").Return([]model.Student{}, nil)
	check(t, serve(e, http.MethodGet, "/api/v1/students", ""), response{http.StatusOK, `[]`})

	m.roster.EXPECT().GetStudent(gomock.Any(), int64(8)).Return(model.Student{}, errs.NotFound("student 8 not found"))
	check(t, serve(e, http.MethodGet, "/api/v1/students/8", ""), response{http.StatusNotFound, `{"message":"student 8 not found"}`})

	m.circulation.EXPECT().ListStudentIssues(gomock.Any(), int64(2)).Return([]model.IssueView{}, nil)
	check(t, serve(e, http.MethodGet, "/api/v1/students/2/issues", ""), response{http.StatusOK, `[]`})

	m.roster.EXPECT().DeleteStudent(gomock.Any(), int64(2)).Return(nil)
	check(t, serve(e, http.MethodDelete, "/api/v1/students/2", ""), response{expectedCode: http.StatusNoContent})
}

func TestHandler_IssueBook(t *testing.T) {
	t.Parallel()
	issued := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	type mockBehavior func(m mocks)

	tests := []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"studentId":1,"bookId":2}`,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					IssueBook(gomock.Any(), model.IssueBookRequest{StudentID: 1, BookID: 2}).
					Return(model.Issue{ID: 3, StudentID: 1, BookID: 2, IssueDate: issued, DueDate: issued.AddDate(0, 0, 14)}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":3,"studentId":1,"bookId":2,"issueDate":"2024-03-01T00:00:00Z","dueDate":"2024-03-15T00:00:00Z","fine":0,"returned":false}`,
			},
		},
		{
			name:         "err. duration too long",
			body:         `{"studentId":1,"bookId":2,"issueDuration":400}`,
			mockBehavior: func(m mocks) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name: "err. already issued",
			body: `{"studentId":1,"bookId":2}`,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().IssueBook(gomock.Any(), gomock.Any()).
					Return(model.Issue{}, errs.Conflict("book 010001 is not available"))
			},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"book 010001 is not available"}`},
		},
		{
			name: "err. unknown student",
			body: `{"studentId":9,"bookId":2}`,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().IssueBook(gomock.Any(), gomock.Any()).
					Return(model.Issue{}, errs.NotFound("student 9 not found"))
			},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"student 9 not found"}`},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := setup(t)
			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/api/v1/issues", h.IssueBook)

			tt.mockBehavior(m)
			check(t, serve(e, http.MethodPost, "/api/v1/issues", tt.body), tt.response)
		})
	}
}

func TestHandler_Returns(t *testing.T) {
	t.Parallel()
	h, m := setup(t)
	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	e.POST("/api/v1/issues/:id/return", h.ReturnBook)
	e.POST("/api/v1/returns/scan", h.ReturnByBarcode)
	e.POST("/api/v1/issues/scan", h.IssueByBarcode)

	m.circulation.EXPECT().ReturnBook(gomock.Any(), int64(4)).
		Return(model.IssueView{}, errs.Conflict("issue 4 is already returned"))
	check(t, serve(e, http.MethodPost, "/api/v1/issues/4/return", ""),
		response{http.StatusConflict, `{"message":"issue 4 is already returned"}`})

	m.circulation.EXPECT().ReturnByBarcode(gomock.Any(), "LIB010001").
		Return(model.IssueView{Issue: model.Issue{ID: 4, Returned: true, Fine: 40}, DaysLate: 2}, nil)
	w := serve(e, http.MethodPost, "/api/v1/returns/scan", `{"token":"LIB010001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"fine":40`)
	require.Contains(t, w.Body.String(), `"daysLate":2`)

	check(t, serve(e, http.MethodPost, "/api/v1/returns/scan", `{}`), response{expectedCode: http.StatusBadRequest})

	m.circulation.EXPECT().IssueByBarcode(gomock.Any(), model.ScanIssueRequest{AdmissionNumber: "12345678", Token: "010001"}).
		Return(model.Issue{ID: 5}, nil)
	w = serve(e, http.MethodPost, "/api/v1/issues/scan", `{"admissionNumber":"12345678","token":"010001"}`)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestHandler_Fines(t *testing.T) {
	t.Parallel()
	h, m := setup(t)
	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	e.GET("/api/v1/fines", h.FineSummary)
	e.POST("/api/v1/fines/estimate", h.EstimateFine)
	e.GET("/api/v1/stats", h.Stats)

	m.circulation.EXPECT().FineSummary(gomock.Any()).
		Return(model.FineSummary{Issues: []model.IssueView{}, TotalFines: 60, TotalOutstanding: 20, TotalCollected: 40}, nil)
	check(t, serve(e, http.MethodGet, "/api/v1/fines", ""), response{http.StatusOK,
		`{"issues":[],"totalFines":60,"totalOutstanding":20,"totalCollected":40}`})

	m.circulation.EXPECT().EstimateFine(model.EstimateFineRequest{DaysLate: 3}).
		Return(model.FineEstimate{DaysLate: 3, FineRate: 20, Fine: 60}, nil)
	check(t, serve(e, http.MethodPost, "/api/v1/fines/estimate", `{"daysLate":3}`), response{http.StatusOK,
		`{"daysLate":3,"fineRate":20,"fine":60}`})

	check(t, serve(e, http.MethodPost, "/api/v1/fines/estimate", `{"daysLate":-1}`), response{expectedCode: http.StatusBadRequest})

	m.circulation.EXPECT().Stats(gomock.Any()).Return(model.Stats{Books: 3, AvailableBooks: 2, Students: 1, OpenIssues: 1}, nil)
	check(t, serve(e, http.MethodGet, "/api/v1/stats", ""), response{http.StatusOK,
		`{"books":3,"availableBooks":2,"students":1,"openIssues":1}`})
}

func TestHandler_Router(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	catalog := service_mocks.NewMockCatalogService(c)
	h := handler.New(catalog, service_mocks.NewMockRosterService(c), service_mocks.NewMockCirculationService(c),
		metrics.New(), zap.NewNop())
	e := h.NewRouter()

	check(t, serve(e, http.MethodGet, "/manage/health", ""), response{http.StatusOK, "OK"})

	catalog.EXPECT().GetBook(gomock.Any(), int64(1)).Return(model.Book{}, errs.NotFound("book 1 not found"))
	check(t, serve(e, http.MethodGet, "/api/v1/books/1", ""), response{expectedCode: http.StatusNotFound})

	w := serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `http_request_duration_seconds_count{method="GET",path="/api/v1/books/:id",status="404"} 1`)
}

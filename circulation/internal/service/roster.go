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

// CreateStudent registers a student. A supplied admission number is used as
// is; otherwise one is generated and regenerated on collision.
func (s *Service) CreateStudent(ctx context.Context, req model.CreateStudentRequest) (model.Student, error) {
	student := model.Student{
		Name:   strings.TrimSpace(req.Name),
		Course: strings.TrimSpace(req.Course),
	}
	if student.Name == "" || student.Course == "" {
		return model.Student{}, errs.Validation("name and course are required")
	}
	if err := maxLen("name", student.Name, model.MaxNameLen); err != nil {
		return model.Student{}, err
	}
	if err := maxLen("course", student.Course, model.MaxCourseLen); err != nil {
		return model.Student{}, err
	}
	if req.Email != nil {
		if email := strings.TrimSpace(*req.Email); email != "" {
			if err := maxLen("email", email, model.MaxEmailLen); err != nil {
				return model.Student{}, err
			}
			if err := s.validate.Var(email, "email"); err != nil {
				return model.Student{}, errs.Validation("invalid email address %q", email)
			}
			student.Email = &email
		}
	}

	if req.AdmissionNumber != nil {
		number := strings.TrimSpace(*req.AdmissionNumber)
		if !allocator.ValidAdmissionNumber(number) {
			return model.Student{}, errs.Validation("admission number must be exactly %d digits", allocator.AdmissionNumberLength)
		}
		student.AdmissionNumber = number
		created, err := s.repo.CreateStudent(ctx, student)
		if err != nil {
			return model.Student{}, err
		}
		return created, nil
	}

	for attempt := 0; ; attempt++ {
		student.AdmissionNumber = allocator.NewAdmissionNumber(s.intn)
		created, err := s.repo.CreateStudent(ctx, student)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, errs.ErrAdmissionNumberTaken) || attempt >= s.admissionRetries {
			if errors.Is(err, errs.ErrConflict) {
				s.metrics.Conflict("create_student")
			}
			return model.Student{}, err
		}
		s.log.Warn("admission number collision, retrying", zap.Int("attempt", attempt+1))
	}
}

func (s *Service) GetStudent(ctx context.Context, id int64) (model.Student, error) {
	return s.repo.GetStudent(ctx, id)
}

func (s *Service) SearchStudents(ctx context.Context, query string) ([]model.Student, error) {
	return s.repo.ListStudents(ctx, strings.TrimSpace(query))
}

// DeleteStudent removes the student and all of their issues; books they still
// held become available again.
func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.StudentDeleted, StudentID: id})
	return nil
}

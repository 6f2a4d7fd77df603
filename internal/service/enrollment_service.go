package service

import (
	"context"
	"errors"
	"fmt"

	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnrollmentService guards direct enrollment: one enrollment per
// (student, course), and paid courses only after a completed payment
type EnrollmentService struct {
	repo       Repository
	publisher  EventPublisher
	background *Background
	logger     *zap.Logger
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(repo Repository, publisher EventPublisher, background *Background) *EnrollmentService {
	return &EnrollmentService{
		repo:       repo,
		publisher:  publisher,
		background: background,
		logger:     util.GetLogger(),
	}
}

// Enroll enrolls a student in a course
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	ctx, span := util.StartSpan(ctx, "EnrollmentService.Enroll")
	defer span.End()

	if courseID == "" {
		return nil, ErrValidation("Course ID is required")
	}

	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.EnrollmentsRejectedTotal.WithLabelValues("course_not_found").Inc()
			return nil, ErrNotFound("Course not found")
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	if _, err := s.repo.GetEnrollment(ctx, studentID, courseID); err == nil {
		util.EnrollmentsRejectedTotal.WithLabelValues("already_enrolled").Inc()
		return nil, ErrConflict("Already enrolled in this course")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}

	if course.IsPaid() {
		if _, err := s.repo.FindLatestPayment(ctx, studentID, courseID, models.PaymentStatusCompleted); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				util.EnrollmentsRejectedTotal.WithLabelValues("payment_required").Inc()
				return nil, ErrValidation("Payment required for this course")
			}
			return nil, fmt.Errorf("failed to check payment: %w", err)
		}
	}

	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  courseID,
	}
	if err := s.repo.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			util.EnrollmentsRejectedTotal.WithLabelValues("already_enrolled").Inc()
			return nil, ErrConflict("Already enrolled in this course")
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	util.EnrollmentsCreatedTotal.WithLabelValues(models.EnrollmentSourceDirect).Inc()
	s.logger.Info("Student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.String("course_id", courseID))

	event := &models.EnrollmentCreatedEvent{
		EnrollmentID: enrollment.ID,
		CourseID:     courseID,
		StudentID:    studentID,
		Source:       models.EnrollmentSourceDirect,
	}
	s.background.Go(ctx, "publish_enrollment_created", func(ctx context.Context) error {
		return s.publisher.PublishEnrollmentCreated(ctx, event)
	})

	return enrollment, nil
}

// ListStudentEnrollments returns a student's enrollments with their courses
func (s *EnrollmentService) ListStudentEnrollments(ctx context.Context, studentID string) ([]models.StudentEnrollment, error) {
	enrollments, err := s.repo.ListEnrollmentsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListCourseEnrollments returns the students of a course. Only the course
// tutor may list them.
func (s *EnrollmentService) ListCourseEnrollments(ctx context.Context, tutorID, courseID string) ([]models.CourseEnrollment, error) {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Course not found")
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if course.TutorID != tutorID {
		return nil, ErrForbidden("Only the course tutor can view enrollments")
	}

	enrollments, err := s.repo.ListEnrollmentsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

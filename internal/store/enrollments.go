package store

import (
	"context"

	"course-service/internal/models"
)

// CreateEnrollment inserts an enrollment. Returns ErrDuplicate if the
// student is already enrolled in the course.
func (s *Store) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	err := s.db.GetContext(ctx, &enrollment.CreatedAt, `
		INSERT INTO enrollments (id, student_id, course_id)
		VALUES ($1, $2, $3)
		RETURNING created_at`, enrollment.ID, enrollment.StudentID, enrollment.CourseID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetEnrollment retrieves the enrollment for a (student, course) pair
func (s *Store) GetEnrollment(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.GetContext(ctx, &enrollment,
		"SELECT id, student_id, course_id, created_at FROM enrollments WHERE student_id = $1 AND course_id = $2",
		studentID, courseID)
	if err != nil {
		return nil, notFound(err, "enrollment for course", courseID)
	}
	return &enrollment, nil
}

// ListEnrollmentsByStudent returns a student's enrollments with their courses
func (s *Store) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]models.StudentEnrollment, error) {
	enrollments := []models.StudentEnrollment{}
	err := s.db.SelectContext(ctx, &enrollments, `
		SELECT e.id, e.student_id, e.course_id, e.created_at,
			c.id AS "course.id", c.title AS "course.title", c.description AS "course.description",
			c.tutor_id AS "course.tutor_id", c.payment_type AS "course.payment_type",
			c.price AS "course.price", c.created_at AS "course.created_at"
		FROM enrollments e JOIN courses c ON c.id = e.course_id
		WHERE e.student_id = $1
		ORDER BY e.created_at DESC`, studentID)
	return enrollments, err
}

// ListEnrollmentsByCourse returns a course's enrollments with student profiles
func (s *Store) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]models.CourseEnrollment, error) {
	enrollments := []models.CourseEnrollment{}
	err := s.db.SelectContext(ctx, &enrollments, `
		SELECT e.id, e.student_id, e.course_id, e.created_at,
			e.student_id AS "student.id", COALESCE(u.name, '') AS "student.name", COALESCE(u.email, '') AS "student.email"
		FROM enrollments e LEFT JOIN users u ON u.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY e.created_at ASC`, courseID)
	return enrollments, err
}

// ListEnrolledStudentIDs returns the ids of all students enrolled in a course
func (s *Store) ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids,
		"SELECT student_id FROM enrollments WHERE course_id = $1 ORDER BY created_at ASC", courseID)
	return ids, err
}

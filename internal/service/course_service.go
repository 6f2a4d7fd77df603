package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"course-service/internal/models"
	"course-service/internal/store"
	"course-service/internal/transcribe"
	"course-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TranscriptUnavailable is stored when transcription fails
const TranscriptUnavailable = "Transcription unavailable"

// CourseService creates courses and registers uploaded videos
type CourseService struct {
	repo        Repository
	transcriber transcribe.Transcriber
	publisher   EventPublisher
	background  *Background
	logger      *zap.Logger
}

// NewCourseService creates a new course service. transcriber may be nil.
func NewCourseService(repo Repository, transcriber transcribe.Transcriber, publisher EventPublisher, background *Background) *CourseService {
	return &CourseService{
		repo:        repo,
		transcriber: transcriber,
		publisher:   publisher,
		background:  background,
		logger:      util.GetLogger(),
	}
}

// CreateCourseRequest represents a request to create a course
type CreateCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	PaymentType string `json:"paymentType"`
	Price       int64  `json:"price"`
}

// UploadVideoRequest registers a video already stored at VideoURL
type UploadVideoRequest struct {
	Title    string `json:"title" binding:"required"`
	VideoURL string `json:"videoUrl" binding:"required"`
}

// CreateCourse creates a course owned by tutorID
func (s *CourseService) CreateCourse(ctx context.Context, tutorID string, req *CreateCourseRequest) (*models.Course, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.CreateCourse")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrValidation("Title is required")
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = models.CoursePaymentFree
	}

	price := req.Price
	switch paymentType {
	case models.CoursePaymentPaid:
		if price <= 0 {
			return nil, ErrValidation("Paid courses require a price greater than 0")
		}
	case models.CoursePaymentFree:
		price = 0
	default:
		return nil, ErrValidation("payment_type must be free or paid")
	}

	course := &models.Course{
		ID:          uuid.NewString(),
		Title:       title,
		Description: req.Description,
		TutorID:     tutorID,
		PaymentType: paymentType,
		Price:       price,
	}
	if err := s.repo.CreateCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	s.logger.Info("Course created", zap.String("course_id", course.ID), zap.String("tutor_id", tutorID))

	event := &models.CourseCreatedEvent{CourseID: course.ID, TutorID: tutorID, Title: course.Title}
	s.background.Go(ctx, "publish_course_created", func(ctx context.Context) error {
		return s.publisher.PublishCourseCreated(ctx, event)
	})

	return course, nil
}

// GetCourse returns a course
func (s *CourseService) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("Course not found")
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return course, nil
}

// UploadVideo attaches a video to a course. Only the course tutor may do so.
// A failed transcription does not fail the upload.
func (s *CourseService) UploadVideo(ctx context.Context, tutorID, courseID string, req *UploadVideoRequest) (*models.Video, error) {
	ctx, span := util.StartSpan(ctx, "CourseService.UploadVideo")
	defer span.End()

	course, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TutorID != tutorID {
		return nil, ErrForbidden("Only the course tutor can upload videos")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.VideoURL) == "" {
		return nil, ErrValidation("Title and video URL are required")
	}

	video := &models.Video{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		Title:      strings.TrimSpace(req.Title),
		VideoURL:   req.VideoURL,
		Transcript: s.transcript(ctx, req.VideoURL),
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	s.logger.Info("Video uploaded",
		zap.String("video_id", video.ID),
		zap.String("course_id", courseID),
		zap.Int("position", video.Position))

	event := &models.VideoUploadedEvent{CourseID: courseID, VideoID: video.ID, VideoTitle: video.Title}
	s.background.Go(ctx, "publish_video_uploaded", func(ctx context.Context) error {
		return s.publisher.PublishVideoUploaded(ctx, event)
	})

	return video, nil
}

func (s *CourseService) transcript(ctx context.Context, videoURL string) string {
	if s.transcriber == nil {
		util.TranscriptionsTotal.WithLabelValues("skipped").Inc()
		return TranscriptUnavailable
	}

	text, err := s.transcriber.Transcribe(ctx, videoURL)
	if err != nil {
		util.TranscriptionsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Transcription failed, storing placeholder", zap.String("video_url", videoURL), zap.Error(err))
		return TranscriptUnavailable
	}
	util.TranscriptionsTotal.WithLabelValues("success").Inc()
	return text
}

package api

import (
	"net/http"

	"course-service/internal/auth"

	"github.com/gin-gonic/gin"
)

// enroll handles direct enrollment
func (h *Handler) enroll(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), auth.UserID(c), req.CourseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, enrollment)
}

func (h *Handler) listStudentEnrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrollments)
}

func (h *Handler) listCourseEnrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListCourseEnrollments(c.Request.Context(), auth.UserID(c), c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrollments)
}

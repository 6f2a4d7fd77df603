package api

import (
	"net/http"

	"course-service/internal/auth"
	"course-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCourse(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	course, err := h.courses.CreateCourse(c.Request.Context(), auth.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *Handler) getCourse(c *gin.Context) {
	course, err := h.courses.GetCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// uploadVideo registers a video that is already in external storage
func (h *Handler) uploadVideo(c *gin.Context) {
	var req service.UploadVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	video, err := h.courses.UploadVideo(c.Request.Context(), auth.UserID(c), c.Param("courseId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, video)
}

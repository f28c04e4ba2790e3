package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"paperwing/internal/controller"
	"paperwing/internal/database"
	"paperwing/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxUploadBytes bounds what one multipart upload may carry. Anything
// larger belongs on a direct-to-bucket path, not in an API request body.
const maxUploadBytes = 100 << 20

func (s *Server) healthHandler(c *gin.Context) {
	report := s.sc.Health(c.Request.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, report)
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}

func (s *Server) uploadDocumentHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")

	// Optional JSON metadata travels as a sibling form field
	var metadata map[string]interface{}
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be a JSON object"})
			return
		}
	}

	priority := 0
	if raw := c.PostForm("priority"); raw != "" {
		priority, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be an integer"})
			return
		}
	}

	doc, job, err := s.dc.UploadDocument(c.Request.Context(), controller.UploadRequest{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
		Metadata:    metadata,
		Priority:    priority,
	})
	if err != nil {
		if errors.Is(err, controller.ErrInvalidDocument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("filename", fileHeader.Filename).Msg("Upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document": doc,
		"job_id":   job.ID,
	})
}

func (s *Server) getDocumentHandler(c *gin.Context) {
	doc, err := s.dc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (s *Server) listDocumentsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be non-negative"})
		return
	}

	docs, err := s.dc.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (s *Server) documentStatusHandler(c *gin.Context) {
	resp, err := s.dc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// processJobsHandler runs one tick of the processing state machine. The
// response status lets the scheduler alert on permanent failures without
// parsing the body.
func (s *Server) processJobsHandler(c *gin.Context) {
	result, err := s.orch.RunTick(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Tick failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if result.Outcome == orchestrator.OutcomeFailed {
		c.JSON(http.StatusInternalServerError, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

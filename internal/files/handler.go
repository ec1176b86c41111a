package files

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"barker/internal/knowledge"
)

// maxFileSize caps each uploaded document at 10 MB.
const maxFileSize = 10 << 20

// Record describes one uploaded file as stored in uploaded_files.
type Record struct {
	ID         string    `json:"id"`
	KBID       string    `json:"kb_id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Handler struct {
	db       *sql.DB
	ingestor *knowledge.Ingestor
	logger   *logrus.Logger
}

func NewHandler(db *sql.DB, ingestor *knowledge.Ingestor, logger *logrus.Logger) *Handler {
	return &Handler{db: db, ingestor: ingestor, logger: logger}
}

func RegisterRoutes(router gin.IRoutes, h *Handler) {
	router.POST("/agents/:kb_id/upload", h.HandleUpload)
	router.GET("/agents/:kb_id/files", h.HandleListFiles)
}

// HandleUpload ingests one or more multipart documents into the agent's KB.
// Files that fail to parse are reported per file without failing the batch.
func (h *Handler) HandleUpload(c *gin.Context) {
	kbID := c.Param("kb_id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required (field: files)"})
		return
	}

	results := make([]gin.H, 0, len(uploads))
	for _, upload := range uploads {
		result := gin.H{"filename": upload.Filename}
		if upload.Size > maxFileSize {
			result["error"] = fmt.Sprintf("file exceeds %d MB limit", maxFileSize>>20)
			results = append(results, result)
			continue
		}

		chunks, size, err := h.ingestFile(c.Request.Context(), kbID, upload.Filename, func() (io.ReadCloser, error) {
			return upload.Open()
		})
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"kb_id":    kbID,
				"filename": upload.Filename,
			}).Warn("File ingestion failed")
			result["error"] = err.Error()
			results = append(results, result)
			continue
		}
		result["chunks_added"] = chunks
		result["size_bytes"] = size
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "files": results})
}

func (h *Handler) ingestFile(ctx context.Context, kbID, filename string, open func() (io.ReadCloser, error)) (int, int64, error) {
	file, err := open()
	if err != nil {
		return 0, 0, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxFileSize+1))
	if err != nil {
		return 0, 0, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxFileSize {
		return 0, 0, fmt.Errorf("file exceeds %d MB limit", maxFileSize>>20)
	}

	text, err := Parse(filename, data)
	if err != nil {
		return 0, 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, 0, fmt.Errorf("no text extracted from %s", filename)
	}

	chunks, err := h.ingestor.AddText(ctx, kbID, "upload://"+filename, filename, text)
	if err != nil {
		return 0, 0, err
	}

	if _, err := h.db.ExecContext(ctx, `
		INSERT INTO uploaded_files (kb_id, filename, size_bytes, chunk_count)
		VALUES ($1, $2, $3, $4)
	`, kbID, filename, int64(len(data)), chunks); err != nil {
		// Ingestion already happened; the record is bookkeeping.
		h.logger.WithError(err).WithField("kb_id", kbID).Warn("Failed to record uploaded file")
	}

	return chunks, int64(len(data)), nil
}

func (h *Handler) HandleListFiles(c *gin.Context) {
	kbID := c.Param("kb_id")

	rows, err := h.db.QueryContext(c.Request.Context(), `
		SELECT id, kb_id, filename, size_bytes, chunk_count, uploaded_at
		FROM uploaded_files
		WHERE kb_id = $1
		ORDER BY uploaded_at DESC
	`, kbID)
	if err != nil {
		h.logger.WithError(err).WithField("kb_id", kbID).Error("Failed to list files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	defer rows.Close()

	files := []Record{}
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.KBID, &record.Filename, &record.SizeBytes, &record.ChunkCount, &record.UploadedAt); err != nil {
			h.logger.WithError(err).Error("Failed to scan file record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
			return
		}
		files = append(files, record)
	}
	if err := rows.Err(); err != nil {
		h.logger.WithError(err).Error("Failed to iterate file records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"kb_id": kbID, "files": files})
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/middleware"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// maxUploadBytes caps an import request body
const maxUploadBytes = 20 << 20

// ImportHandler handles CSV import API requests
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// CreateImport handles an import, either as a multipart upload (file,
// optional companion, platform, account_id, mapping) or as JSON
// POST /api/v1/imports
func (h *ImportHandler) CreateImport(c *gin.Context) {
	req, ok := h.bindImport(c)
	if !ok {
		return
	}

	summary, err := h.imports.Import(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, summary)
}

// PreviewImport parses an upload without storing anything
// POST /api/v1/imports/preview
func (h *ImportHandler) PreviewImport(c *gin.Context) {
	req, ok := h.bindImport(c)
	if !ok {
		return
	}

	preview, err := h.imports.Preview(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, preview)
}

// GetImport returns the summary of a past import
// GET /api/v1/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	summary, err := h.imports.GetResult(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, summary)
}

// ListImports returns the user's recent imports
// GET /api/v1/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	batches, err := h.imports.ListImports(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, batches)
}

// GetPlatforms lists the supported export formats
// GET /api/v1/import-platforms
func (h *ImportHandler) GetPlatforms(c *gin.Context) {
	response.Success(c, h.imports.Platforms())
}

func (h *ImportHandler) bindImport(c *gin.Context) (*service.ImportRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req service.ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return nil, false
		}
		return &req, true
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.bindError(c, err)
		return nil, false
	}
	content, err := readUpload(fh)
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}

	req := &service.ImportRequest{
		Platform: c.PostForm("platform"),
		FileName: fh.Filename,
		Content:  content,
	}

	if companion, err := c.FormFile("companion"); err == nil {
		if req.CompanionContent, err = readUpload(companion); err != nil {
			response.BadRequest(c, err.Error())
			return nil, false
		}
	}

	if v := c.PostForm("account_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid account_id")
			return nil, false
		}
		accountID := uint(id)
		req.AccountID = &accountID
	}

	if v := c.PostForm("mapping"); v != "" {
		var mapping map[importer.Field]string
		if err := json.Unmarshal([]byte(v), &mapping); err != nil {
			response.BadRequest(c, "mapping must be a JSON object of field to column")
			return nil, false
		}
		req.Mapping = mapping
	}

	return req, true
}

func (h *ImportHandler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.PayloadTooLarge(c, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		response.BadRequest(c, "file is required")
		return
	}
	response.BadRequest(c, err.Error())
}

func readUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return string(data), nil
}

// RegisterRoutes registers import routes
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	imports := rg.Group("/imports")
	imports.Use(authMiddleware)
	{
		imports.POST("", h.CreateImport)
		imports.GET("", h.ListImports)
		imports.POST("/preview", h.PreviewImport)
		imports.GET("/:id", h.GetImport)
	}

	rg.GET("/import-platforms", authMiddleware, h.GetPlatforms)
}

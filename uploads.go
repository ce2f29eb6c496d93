package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadSizeBytes = 5 << 20
	thumbnailWidth     = 200
)

var errUploadTooLarge = errors.New("file size exceeds 5MB limit")

type uploadResponse struct {
	Uri          string `json:"uri"`
	Url          string `json:"url"`
	ThumbnailUri string `json:"thumbnail_uri,omitempty"`
	ContentType  string `json:"content_type"`
	Size         int    `json:"size"`
}

// upload stores a multipart "file" field and, for images, a JPEG thumbnail next to it.
// The returned uri is what photo, signature and checklist answers reference.
func (h *apiHandler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errUploadTooLarge.Error()})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read file"})
		return
	}
	if len(data) > maxUploadSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errUploadTooLarge.Error()})
		return
	}

	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	ctx := c.Request.Context()
	storage := h.getEngine().Storage
	uri, err := storage.Store(ctx, data, contentType)
	if err != nil {
		logUploadError(err, "store", c.GetHeader("x-correlation-id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	resp := uploadResponse{
		Uri:         uri,
		Url:         utils.BuildObjectAccessURL(uri),
		ContentType: contentType,
		Size:        len(data),
	}
	if strings.HasPrefix(contentType, "image/") {
		// Thumbnails are best-effort; the original is already stored.
		thumbUri, err := createThumbnail(ctx, storage, data)
		if err != nil {
			logUploadError(err, "thumbnail", c.GetHeader("x-correlation-id"))
		} else {
			resp.ThumbnailUri = thumbUri
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func createThumbnail(ctx context.Context, storage models.BlobStorage, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}
	return storage.Store(ctx, buf.Bytes(), "image/jpeg")
}

func logUploadError(err error, step string, requestID string) {
	config.GetLogger().WithFields(logrus.Fields{
		"field":     "upload",
		"step":      step,
		"requestId": requestID,
	}).Error(err.Error())
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client.
// ADC is used unless GCS_CREDENTIALS_JSON is set.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSStorage stores photo and signature blobs and returns gs:// handles.
type GCSStorage struct {
	Bucket string
	Prefix string
}

func NewGCSStorage() (*GCSStorage, error) {
	bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucketName == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	prefix := strings.Trim(os.Getenv("GCS_PREFIX"), "/")
	if prefix == "" {
		prefix = "work-orders"
	}
	return &GCSStorage{Bucket: bucketName, Prefix: prefix}, nil
}

// Store writes data under a fresh object key.
func (g *GCSStorage) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	objectName := path.Join(g.Prefix, uuid.NewString()+extensionFor(contentType))
	if err := g.StoreAt(ctx, objectName, data, contentType); err != nil {
		return "", err
	}
	return "gs://" + g.Bucket + "/" + objectName, nil
}

// StoreAt writes data to an explicit object key.
func (g *GCSStorage) StoreAt(ctx context.Context, objectName string, data []byte, contentType string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(g.Bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// Remove deletes the object behind uri; a missing object is not an error.
func (g *GCSStorage) Remove(ctx context.Context, uri string) error {
	objectName := ExtractObjectKeyFromURL(uri)
	if objectName == "" {
		return fmt.Errorf("unrecognised storage uri %q", uri)
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Bucket(g.Bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ""
	}
}

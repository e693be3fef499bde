package gcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Uploader wraps a Cloud Storage bucket for the two upload roles the
// pipeline needs: gs:// audit copies of originals and publicly addressable
// page images. Writes are conditional on the object not existing, so a
// re-ingested job never clobbers or duplicates an earlier copy.
type Uploader struct {
	client *storage.Client
	bucket string
}

// NewUploader creates an Uploader writing into bucket.
func NewUploader(client *storage.Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Upload copies a local file into the bucket and returns its gs:// URI.
func (u *Uploader) Upload(ctx context.Context, localPath, destObject string) (string, error) {
	if err := u.copyObject(ctx, localPath, destObject); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, destObject), nil
}

// Host copies a local image into the bucket and returns the URL it is served
// from. The bucket is expected to allow public reads.
func (u *Uploader) Host(ctx context.Context, localPath, destObject string) (string, error) {
	if err := u.copyObject(ctx, localPath, destObject); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, destObject), nil
}

func (u *Uploader) copyObject(ctx context.Context, localPath, destObject string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	writer := u.client.Bucket(u.bucket).Object(destObject).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", u.bucket, destObject, err)
	}
	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusPreconditionFailed {
			// Object already present from an earlier attempt. Not a failure.
			return nil
		}
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", u.bucket, destObject, err)
	}
	return nil
}

// DownloadObject streams a GCS object to a local destination path.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

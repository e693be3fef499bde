package gcp

import (
	"context"
	"fmt"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"google.golang.org/api/option"
)

// NewVisionClient creates an ImageAnnotatorClient, preferring inline
// credentials (GOOGLE_CREDENTIALS), then a credentials file
// (GOOGLE_APPLICATION_CREDENTIALS), then application default credentials.
func NewVisionClient(ctx context.Context) (*vision.ImageAnnotatorClient, error) {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, fmt.Errorf("failed to create vision client with GOOGLE_CREDENTIALS: %w", err)
		}
		return client, nil
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, fmt.Errorf("failed to create vision client with GOOGLE_APPLICATION_CREDENTIALS: %w", err)
		}
		return client, nil
	}
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client with default credentials: %w", err)
	}
	return client, nil
}

// Package store persists normalized reports in Firestore.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/carevault/reportflow/internal/models"
)

// FirestoreStore keeps reports in a single Firestore collection, one document
// per report, ordered by server-assigned creation time.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a store writing into the named collection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

// Insert adds one report and returns it with its document ID and
// server-assigned timestamps filled in.
func (s *FirestoreStore) Insert(ctx context.Context, r models.Report) (models.Report, error) {
	ref, _, err := s.client.Collection(s.collection).Add(ctx, r)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to add report to collection %s: %w", s.collection, err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to read back report %s: %w", ref.ID, err)
	}
	var stored models.Report
	if err := snap.DataTo(&stored); err != nil {
		return models.Report{}, fmt.Errorf("failed to decode report %s: %w", ref.ID, err)
	}
	stored.ID = ref.ID
	return stored, nil
}

// ListAll returns every report in the collection, newest first.
func (s *FirestoreStore) ListAll(ctx context.Context) ([]models.Report, error) {
	iter := s.client.Collection(s.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var reports []models.Report
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate reports: %w", err)
		}
		var r models.Report
		if err := snap.DataTo(&r); err != nil {
			return nil, fmt.Errorf("failed to decode report %s: %w", snap.Ref.ID, err)
		}
		r.ID = snap.Ref.ID
		reports = append(reports, r)
	}
	return reports, nil
}

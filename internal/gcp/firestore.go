package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/doctextflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// ConversionStore keeps one record per uploaded file in a Firestore collection.
type ConversionStore struct {
	client     *firestore.Client
	collection string
}

func NewConversionStore(client *firestore.Client, collection string) *ConversionStore {
	return &ConversionStore{client: client, collection: collection}
}

// FindConverted returns the ID of a record with the same hash that already
// reached CONVERTED, or "" when there is none.
func (s *ConversionStore) FindConverted(ctx context.Context, fileHash string) (string, error) {
	docs, err := s.client.Collection(s.collection).
		Where("fileHash", "==", fileHash).
		Where("status", "==", models.StatusConverted).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Ref.ID, nil
}

// Create adds a CONVERTING record.
func (s *ConversionStore) Create(ctx context.Context, doc models.Document) (*firestore.DocumentRef, error) {
	doc.Status = models.StatusConverting
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	ref, _, err := s.client.Collection(s.collection).Add(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion document: %w", err)
	}
	return ref, nil
}

func (s *ConversionStore) MarkConverted(ctx context.Context, ref *firestore.DocumentRef, out models.ConversionOutcome) error {
	_, err := ref.Update(ctx, convertedUpdates(out))
	return err
}

func (s *ConversionStore) MarkFailed(ctx context.Context, ref *firestore.DocumentRef, details string) error {
	_, err := ref.Update(ctx, failedUpdates(details))
	return err
}

func (s *ConversionStore) RecordExecution(ctx context.Context, ref *firestore.DocumentRef, execName string) error {
	_, err := ref.Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: execName}})
	return err
}

func convertedUpdates(out models.ConversionOutcome) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusConverted},
		{Path: "method", Value: out.Method},
		{Path: "repaired", Value: out.Repaired},
		{Path: "outputUri", Value: out.OutputURI},
	}
	if out.OCRError != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: out.OCRError})
	}
	return updates
}

func failedUpdates(details string) []firestore.Update {
	updates := []firestore.Update{{Path: "status", Value: models.StatusFailed}}
	if details != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: details})
	}
	return updates
}

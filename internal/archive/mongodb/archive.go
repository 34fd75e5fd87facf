// Package mongodb keeps a compliance archive of exported trace reports.
package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"almazara/internal/adapters/exports"
	"almazara/internal/trace"
)

const collectionName = "trace_exports"

// Document is the archived form of one completed export.
type Document struct {
	ExportID        string    `bson:"export_id"`
	Query           string    `bson:"query"`
	StartKind       string    `bson:"start_kind"`
	StartID         string    `bson:"start_id"`
	SnapshotVersion uint64    `bson:"snapshot_version"`
	Formats         []string  `bson:"formats"`
	ArtifactKeys    []string  `bson:"artifact_keys"`
	RequestedBy     string    `bson:"requested_by,omitempty"`
	Reason          string    `bson:"reason,omitempty"`
	Notes           []string  `bson:"notes,omitempty"`
	Report          string    `bson:"report"`
	ArchivedAt      time.Time `bson:"archived_at"`
}

type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Archive writes export documents to MongoDB.
type Archive struct {
	client *mongo.Client
	coll   inserter
	now    func() time.Time
}

// New connects to uri, verifies the connection and ensures the lookup index.
func New(ctx context.Context, uri, dbName string) (*Archive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	coll := client.Database(dbName).Collection(collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "start_kind", Value: 1}, {Key: "start_id", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create archive index: %w", err)
	}
	return &Archive{client: client, coll: coll, now: time.Now}, nil
}

func newWithCollection(coll inserter, now func() time.Time) *Archive {
	return &Archive{coll: coll, now: now}
}

// Archive implements exports.Archiver.
func (a *Archive) Archive(ctx context.Context, record exports.Record, report trace.Report) error {
	doc, err := a.document(record, report)
	if err != nil {
		return err
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive export %s: %w", record.ID, err)
	}
	return nil
}

func (a *Archive) document(record exports.Record, report trace.Report) (Document, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return Document{}, fmt.Errorf("encode report: %w", err)
	}
	doc := Document{
		ExportID:        record.ID,
		Query:           record.Query,
		StartKind:       string(report.Start.Kind),
		StartID:         report.Start.ID,
		SnapshotVersion: report.SnapshotVersion,
		RequestedBy:     record.RequestedBy,
		Reason:          record.Reason,
		Report:          string(payload),
		ArchivedAt:      a.now().UTC(),
	}
	for _, f := range record.Formats {
		doc.Formats = append(doc.Formats, string(f))
	}
	for _, art := range record.Artifacts {
		doc.ArtifactKeys = append(doc.ArtifactKeys, art.Key)
	}
	for _, n := range report.Notes {
		doc.Notes = append(doc.Notes, string(n.Code)+": "+n.Message)
	}
	return doc, nil
}

// Close disconnects the client.
func (a *Archive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// =============================================================================
// MongoDB Trace Adapter
// =============================================================================

const (
	collectionTraces    = "agent_traces"
	collectionAnalytics = "analytics_snapshots"

	// Step payloads above this size are gzip-compressed.
	traceCompressionThreshold = 512

	DefaultRetention = 30 * 24 * time.Hour
)

// TraceAdapter implements out.TraceSink. Documents expire after the
// retention period through a TTL index.
type TraceAdapter struct {
	traces    *mongo.Collection
	analytics *mongo.Collection
	retention time.Duration
	now       func() time.Time
}

var _ out.TraceSink = (*TraceAdapter)(nil)

func NewTraceAdapter(db *mongo.Database, retention time.Duration) *TraceAdapter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &TraceAdapter{
		traces:    db.Collection(collectionTraces),
		analytics: db.Collection(collectionAnalytics),
		retention: retention,
		now:       time.Now,
	}
}

// EnsureIndexes creates necessary indexes for both collections.
func (a *TraceAdapter) EnsureIndexes(ctx context.Context) error {
	ttl := options.Index().SetExpireAfterSeconds(0)

	_, err := a.traces.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "trace_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "email_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
	})
	if err != nil {
		return fmt.Errorf("trace indexes: %w", err)
	}

	_, err = a.analytics.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "captured_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
	})
	if err != nil {
		return fmt.Errorf("analytics indexes: %w", err)
	}
	return nil
}

// =============================================================================
// Document Model
// =============================================================================

type traceDocument struct {
	TraceID          string    `bson:"trace_id"`
	UserID           string    `bson:"user_id"`
	EmailID          string    `bson:"email_id"`
	FinalDecision    string    `bson:"final_decision"`
	Reasoning        string    `bson:"reasoning"`
	ConfidenceScore  int       `bson:"confidence_score"`
	ProcessingTimeMs int64     `bson:"processing_time_ms"`
	Steps            []byte    `bson:"steps"`
	IsCompressed     bool      `bson:"is_compressed"`
	CreatedAt        time.Time `bson:"created_at"`
	ExpiresAt        time.Time `bson:"expires_at"`
}

type analyticsDocument struct {
	UserID             string    `bson:"user_id"`
	Total              int       `bson:"total_emails_processed"`
	NotifyImmediately  int       `bson:"notify_immediately"`
	Delayed            int       `bson:"delayed"`
	Batched            int       `bson:"batched"`
	Ignored            int       `bson:"ignored"`
	Precision          float64   `bson:"precision"`
	Recall             float64   `bson:"recall"`
	FalsePositives     int       `bson:"false_positives"`
	UserOverrides      int       `bson:"user_overrides"`
	TimeSavedMinutes   int       `bson:"time_saved_minutes"`
	AvgConfidenceScore float64   `bson:"avg_confidence_score"`
	CapturedAt         time.Time `bson:"captured_at"`
	ExpiresAt          time.Time `bson:"expires_at"`
}

func (a *TraceAdapter) toTraceDocument(userID string, tr *domain.AgentTrace) (*traceDocument, error) {
	steps, err := json.Marshal(tr.Steps)
	if err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	compressed := false
	if len(steps) > traceCompressionThreshold {
		if steps, err = compress(steps); err != nil {
			return nil, fmt.Errorf("compress steps: %w", err)
		}
		compressed = true
	}

	now := a.now()
	return &traceDocument{
		TraceID:          tr.ID,
		UserID:           userID,
		EmailID:          tr.EmailID,
		FinalDecision:    string(tr.FinalDecision),
		Reasoning:        tr.Reasoning,
		ConfidenceScore:  tr.Metrics.ConfidenceScore,
		ProcessingTimeMs: tr.Metrics.ProcessingTimeMs,
		Steps:            steps,
		IsCompressed:     compressed,
		CreatedAt:        tr.Timestamp,
		ExpiresAt:        now.Add(a.retention),
	}, nil
}

func (d *traceDocument) toEntity() (*domain.AgentTrace, error) {
	steps := d.Steps
	if d.IsCompressed {
		var err error
		if steps, err = decompress(steps); err != nil {
			return nil, fmt.Errorf("decompress steps: %w", err)
		}
	}

	tr := &domain.AgentTrace{
		ID:            d.TraceID,
		EmailID:       d.EmailID,
		FinalDecision: domain.Decision(d.FinalDecision),
		Reasoning:     d.Reasoning,
		Metrics: domain.TraceMetrics{
			ProcessingTimeMs: d.ProcessingTimeMs,
			ConfidenceScore:  d.ConfidenceScore,
		},
		Timestamp: d.CreatedAt,
	}
	if err := json.Unmarshal(steps, &tr.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return tr, nil
}

func (a *TraceAdapter) toAnalyticsDocument(userID string, data *domain.AnalyticsData) *analyticsDocument {
	now := a.now()
	return &analyticsDocument{
		UserID:             userID,
		Total:              data.TotalEmailsProcessed,
		NotifyImmediately:  data.DecisionsBreakdown.NotifyImmediately,
		Delayed:            data.DecisionsBreakdown.Delayed,
		Batched:            data.DecisionsBreakdown.Batched,
		Ignored:            data.DecisionsBreakdown.Ignored,
		Precision:          data.Accuracy.Precision,
		Recall:             data.Accuracy.Recall,
		FalsePositives:     data.Accuracy.FalsePositives,
		UserOverrides:      data.UserOverrides,
		TimeSavedMinutes:   data.TimeSavedMinutes,
		AvgConfidenceScore: data.AvgConfidenceScore,
		CapturedAt:         now,
		ExpiresAt:          now.Add(a.retention),
	}
}

// =============================================================================
// TraceSink
// =============================================================================

// ShipTrace upserts by trace ID so a retried shipment is harmless.
func (a *TraceAdapter) ShipTrace(ctx context.Context, userID string, tr *domain.AgentTrace) error {
	doc, err := a.toTraceDocument(userID, tr)
	if err != nil {
		return err
	}

	_, err = a.traces.ReplaceOne(ctx, bson.M{"trace_id": tr.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return apperr.DatabaseError("save trace", err)
	}
	return nil
}

func (a *TraceAdapter) ShipAnalytics(ctx context.Context, userID string, data *domain.AnalyticsData) error {
	if _, err := a.analytics.InsertOne(ctx, a.toAnalyticsDocument(userID, data)); err != nil {
		return apperr.DatabaseError("save analytics snapshot", err)
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// ListTraces returns the newest traces of a user, optionally for one email.
func (a *TraceAdapter) ListTraces(ctx context.Context, userID, emailID string, limit int64) ([]domain.AgentTrace, error) {
	filter := bson.M{"user_id": userID}
	if emailID != "" {
		filter["email_id"] = emailID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := a.traces.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.DatabaseError("find traces", err)
	}
	defer cursor.Close(ctx)

	var docs []traceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.DatabaseError("decode traces", err)
	}

	traces := make([]domain.AgentTrace, 0, len(docs))
	for i := range docs {
		tr, err := docs[i].toEntity()
		if err != nil {
			return nil, err
		}
		traces = append(traces, *tr)
	}
	return traces, nil
}

// GetTrace returns one trace by ID.
func (a *TraceAdapter) GetTrace(ctx context.Context, traceID string) (*domain.AgentTrace, error) {
	var doc traceDocument
	if err := a.traces.FindOne(ctx, bson.M{"trace_id": traceID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, apperr.DatabaseError("get trace", err)
	}
	return doc.toEntity()
}

// =============================================================================
// Compression
// =============================================================================

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

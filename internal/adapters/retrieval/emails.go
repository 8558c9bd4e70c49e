package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

const (
	// MaxEmailResults caps similarity search results
	MaxEmailResults = 3
	// DefaultVectorIndex is the Atlas search index over the embedding field
	DefaultVectorIndex = "email_vector_index"

	candidateFactor  = 10
	embeddingField   = "embedding"
	defaultBatchSize = 50
)

// EmailDocument is an email as stored in the emails collection
type EmailDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	Sender    string        `bson:"sender" json:"sender"`
	Subject   string        `bson:"subject" json:"subject"`
	Body      string        `bson:"body" json:"body"`
	Timestamp time.Time     `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Embedding []float32     `bson:"embedding,omitempty" json:"-"`
	Score     float64       `bson:"score,omitempty" json:"-"`
}

// EmbeddingText is the text an email is embedded from
func (d EmailDocument) EmbeddingText() string {
	return strings.TrimSpace(d.Subject + "\n" + d.Body)
}

// EmailIndex searches and maintains emails stored with vector embeddings
type EmailIndex struct {
	coll     emailCollection
	embedder engine.Embedder
	index    string
}

// NewEmailIndex creates an email index over a wrapped collection
func NewEmailIndex(coll emailCollection, embedder engine.Embedder, index string) *EmailIndex {
	if index == "" {
		index = DefaultVectorIndex
	}
	return &EmailIndex{coll: coll, embedder: embedder, index: index}
}

// SearchEmailsBySimilarity embeds query and returns the closest emails,
// highest score first. At most MaxEmailResults are returned.
func (x *EmailIndex) SearchEmailsBySimilarity(ctx context.Context, query string, limit int) ([]domain.EmailMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 || limit > MaxEmailResults {
		limit = MaxEmailResults
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}

	pipeline := []bson.M{
		{"$vectorSearch": bson.M{
			"index":         x.index,
			"path":          embeddingField,
			"queryVector":   vectors[0],
			"numCandidates": limit * candidateFactor,
			"limit":         limit,
		}},
		{"$project": bson.M{
			"_id":       1,
			"sender":    1,
			"subject":   1,
			"body":      1,
			"timestamp": 1,
			"score":     bson.M{"$meta": "vectorSearchScore"},
		}},
	}

	cur, err := x.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer cur.Close(ctx)

	var docs []EmailDocument
	for cur.Next(ctx) {
		var doc EmailDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode email: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector search results: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	matches := make([]domain.EmailMatch, 0, len(docs))
	for _, doc := range docs {
		matches = append(matches, domain.EmailMatch{
			Sender:  doc.Sender,
			Subject: doc.Subject,
			Content: doc.Body,
		})
	}
	return matches, nil
}

// Insert stores emails, embedding any that arrive without a vector
func (x *EmailIndex) Insert(ctx context.Context, docs []EmailDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var texts []string
	var missing []int
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			texts = append(texts, doc.EmbeddingText())
			missing = append(missing, i)
		}
	}
	if len(texts) > 0 {
		vectors, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed emails: %w", err)
		}
		for n, i := range missing {
			if n < len(vectors) {
				docs[i].Embedding = vectors[n]
			}
		}
	}

	items := make([]any, len(docs))
	for i := range docs {
		items[i] = docs[i]
	}
	inserted, err := x.coll.InsertMany(ctx, items)
	if err != nil {
		return inserted, fmt.Errorf("failed to insert emails: %w", err)
	}
	return inserted, nil
}

// BackfillEmbeddings embeds up to batchSize stored emails that have no
// vector yet and returns how many were updated.
func (x *EmailIndex) BackfillEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	cur, err := x.coll.Find(ctx, bson.M{embeddingField: bson.M{"$exists": false}}, int64(batchSize))
	if err != nil {
		return 0, fmt.Errorf("failed to find emails without embeddings: %w", err)
	}
	var docs []EmailDocument
	for cur.Next(ctx) {
		var doc EmailDocument
		if err := cur.Decode(&doc); err != nil {
			cur.Close(ctx)
			return 0, fmt.Errorf("failed to decode email: %w", err)
		}
		docs = append(docs, doc)
	}
	cur.Close(ctx)
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.EmbeddingText()
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed emails: %w", err)
	}

	updated := 0
	for i, doc := range docs {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		update := bson.M{"$set": bson.M{embeddingField: vectors[i]}}
		if err := x.coll.UpdateOne(ctx, bson.M{"_id": doc.ID}, update); err != nil {
			logger.Base().Warn("Failed to store email embedding",
				zap.String("email_id", doc.ID.Hex()),
				zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}

// Package factindex maintains a best-effort semantic index over stored
// facts, persisted under dataDir/factindex. The gateway holds an open
// Index, but build_context does not consult it and no fact write updates
// it. Its failure modes are all non-fatal: an index that can't embed or
// query degrades to "no extra recall," never to a broken conversation.
package factindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/philippgille/chromem-go"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/store"
)

const logComponent = "factindex"

// Result is one semantic match over a sender's facts.
type Result struct {
	Key   string
	Value string
	Score float32
}

// Index wraps a persistent chromem-go collection of facts, keyed per
// sender so one user's facts never surface in another's recall.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Open initializes the persistent fact index under dataDir/factindex.
// embeddingFn may be nil, in which case chromem-go's default local
// embedding function is used — no external embedding API is required.
func Open(dataDir string, embeddingFn chromem.EmbeddingFunc) (*Index, error) {
	dbPath := filepath.Join(dataDir, "factindex")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create fact index dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("open fact index db: %w", err)
	}
	coll, err := db.GetOrCreateCollection("facts", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create facts collection: %w", err)
	}
	return &Index{db: db, collection: coll}, nil
}

func docID(senderID, key string) string {
	return senderID + ":" + key
}

// Upsert indexes or re-indexes one fact. Errors are logged, not
// returned, since the index is a best-effort recall layer.
func (idx *Index) Upsert(ctx context.Context, senderID string, f store.Fact) {
	doc := chromem.Document{
		ID:      docID(senderID, f.Key),
		Content: f.Key + ": " + f.Value,
		Metadata: map[string]string{
			"sender_id": senderID,
			"key":       f.Key,
			"value":     f.Value,
		},
	}
	if err := idx.collection.AddDocument(ctx, doc); err != nil {
		logging.WarnCF(logComponent, "failed to index fact", map[string]interface{}{"sender_id": senderID, "key": f.Key, "err": err.Error()})
	}
}

// Delete removes one fact from the index.
func (idx *Index) Delete(ctx context.Context, senderID, key string) {
	if err := idx.collection.Delete(ctx, nil, nil, docID(senderID, key)); err != nil {
		logging.WarnCF(logComponent, "failed to remove fact from index", map[string]interface{}{"sender_id": senderID, "key": key, "err": err.Error()})
	}
}

// Rebuild drops and re-indexes every fact for a sender from the store,
// used at startup and after bulk fact purges.
func (idx *Index) Rebuild(ctx context.Context, s *store.Store, senderID string) error {
	facts, err := s.AllFacts(senderID)
	if err != nil {
		return fmt.Errorf("load facts for rebuild: %w", err)
	}
	for _, f := range facts {
		idx.Upsert(ctx, senderID, f)
	}
	return nil
}

// Search returns up to limit semantically related facts for a sender.
// Any query failure — including "not enough documents indexed yet" —
// degrades to an empty result.
func (idx *Index) Search(ctx context.Context, senderID, query string, limit int) []Result {
	if idx.collection.Count() == 0 {
		return nil
	}
	if limit > idx.collection.Count() {
		limit = idx.collection.Count()
	}
	results, err := idx.collection.Query(ctx, query, limit, map[string]string{"sender_id": senderID}, nil)
	if err != nil {
		logging.WarnCF(logComponent, "fact index query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		return nil
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{Key: r.Metadata["key"], Value: r.Metadata["value"], Score: r.Similarity})
	}
	return out
}

func (idx *Index) Close() error {
	return nil
}

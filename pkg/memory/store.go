// Package memory implements the agent's two-scope document memory:
// a per-process session scope and a LevelDB-backed user scope. Documents
// carry typed metadata and a deterministic embedding; search merges both
// scopes by ascending distance.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrUnavailable indicates the store cannot serve requests (closed or
// failed to open). Callers degrade rather than abort.
var ErrUnavailable = errors.New("memory store unavailable")

// Document types stored in memory.
const (
	DocProfile     = "profile"
	DocPreference  = "preference"
	DocTripSummary = "trip_summary"
	DocToolOutput  = "tool_output"
	DocNote        = "note"
)

// Entry is one document to persist.
type Entry struct {
	Text     string
	RunID    string
	DocType  string
	Metadata map[string]any
}

// Query selects documents by embedding distance across the enabled
// scopes.
type Query struct {
	Query          string
	K              int
	IncludeSession bool
	IncludeUser    bool
}

// Hit is one search result.
type Hit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Store is the memory collaborator consumed by the graph nodes.
type Store interface {
	AddSession(ctx context.Context, e Entry) (string, error)
	AddUser(ctx context.Context, e Entry) (string, error)
	Search(ctx context.Context, q Query) ([]Hit, error)
}

// document is the stored representation, shared by both scopes.
type document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

const userDocPrefix = "doc|"

// DualStore keeps session documents in process memory and user documents
// in a LevelDB directory that survives across runs.
type DualStore struct {
	userID string

	mu      sync.RWMutex
	session []document
	db      *leveldb.DB
}

// Open creates a DualStore over the given persist directory. The session
// scope starts empty; Close releases the user database.
func Open(persistDir, userID string) (*DualStore, error) {
	db, err := leveldb.OpenFile(persistDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	return &DualStore{userID: userID, db: db}, nil
}

// Close releases the user-scope database.
func (s *DualStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ResetSession drops all session-scope documents.
func (s *DualStore) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// AddSession stores a document in the session scope and returns its id.
func (s *DualStore) AddSession(_ context.Context, e Entry) (string, error) {
	doc := s.newDocument(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = append(s.session, doc)
	return doc.ID, nil
}

// AddUser stores a document in the persistent user scope and returns its
// id.
func (s *DualStore) AddUser(_ context.Context, e Entry) (string, error) {
	doc := s.newDocument(e)
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal memory doc: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return "", ErrUnavailable
	}
	if err := s.db.Put([]byte(userDocPrefix+doc.ID), raw, nil); err != nil {
		return "", fmt.Errorf("put memory doc: %w", err)
	}
	return doc.ID, nil
}

// Search returns the k nearest documents across the enabled scopes,
// sorted by ascending distance.
func (s *DualStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.K <= 0 {
		q.K = 5
	}
	queryVec := Embed(q.Query)

	var hits []Hit
	if q.IncludeUser {
		userHits, err := s.searchUser(ctx, queryVec)
		if err != nil {
			return nil, err
		}
		hits = append(hits, userHits...)
	}
	if q.IncludeSession {
		hits = append(hits, s.searchSession(queryVec)...)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

func (s *DualStore) searchSession(queryVec []float32) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]Hit, 0, len(s.session))
	for _, doc := range s.session {
		hits = append(hits, docHit(doc, queryVec))
	}
	return hits
}

func (s *DualStore) searchUser(ctx context.Context, queryVec []float32) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrUnavailable
	}

	var hits []Hit
	iter := s.db.NewIterator(util.BytesPrefix([]byte(userDocPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc document
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			continue
		}
		if uid, ok := doc.Metadata["user_id"].(string); ok && uid != s.userID {
			continue
		}
		hits = append(hits, docHit(doc, queryVec))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan memory docs: %w", err)
	}
	return hits, nil
}

func (s *DualStore) newDocument(e Entry) document {
	meta := map[string]any{
		"type":       e.DocType,
		"user_id":    s.userID,
		"run_id":     e.RunID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range e.Metadata {
		if v != nil {
			meta[k] = v
		}
	}
	return document{
		ID:        uuid.New().String(),
		Text:      e.Text,
		Metadata:  meta,
		Embedding: Embed(e.Text),
	}
}

func docHit(doc document, queryVec []float32) Hit {
	return Hit{
		ID:       doc.ID,
		Text:     doc.Text,
		Metadata: doc.Metadata,
		Distance: CosineDistance(queryVec, doc.Embedding),
	}
}

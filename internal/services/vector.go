package services

import (
  "context"
  "fmt"

  "github.com/google/uuid"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/clients/pinecone"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/queue"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/sessions"
)

// VectorService publishes vector-index mutations for a session's search
// results and answers similarity lookups against the session's current result
// set. Each logical result set gets a fresh namespace (a UUID), so redelivered
// upserts can never cross-contaminate another result set, and the previous
// result set's namespace is dropped once it is superseded.
type VectorService interface {
  IndexSearchResults(ctx context.Context, token string, entries []queue.VectorEntry) (string, error)
  QueryResultIDs(ctx context.Context, token string, q []float32, topK int) ([]string, error)
  DropNamespace(ctx context.Context, namespace string) error
}

type vectorService struct {
  log          *logger.Logger
  producer     queue.Producer
  sessionStore sessions.Store
  index        pinecone.VectorStore
}

func NewVectorService(log *logger.Logger, producer queue.Producer, sessionStore sessions.Store, index pinecone.VectorStore) VectorService {
  serviceLog := log.With("service", "VectorService")
  return &vectorService{
    log:          serviceLog,
    producer:     producer,
    sessionStore: sessionStore,
    index:        index,
  }
}

// IndexSearchResults enqueues an upsert of the result set under a new namespace
// and repoints the session at it. The namespace the session previously pointed
// at is enqueued for deletion. Returns the new namespace.
func (vs *vectorService) IndexSearchResults(ctx context.Context, token string, entries []queue.VectorEntry) (string, error) {
  if len(entries) == 0 {
    return "", fmt.Errorf("no vector entries to index")
  }

  sess, err := vs.sessionStore.Get(ctx, token)
  if err != nil {
    return "", err
  }

  namespace := uuid.NewString()

  if err := vs.producer.Enqueue(ctx, queue.TopicAddToVectorDB, queue.Message{
    Operation:  queue.OpAddToVectorDB,
    Namespace:  namespace,
    VectorData: entries,
  }); err != nil {
    return "", err
  }

  if err := vs.sessionStore.Update(ctx, token, sessions.Patch{LastIndexNamespace: &namespace}); err != nil {
    return "", fmt.Errorf("Failed to point session at namespace %q: %w", namespace, err)
  }

  if prev := sess.LastIndexNamespace; prev != "" && prev != namespace {
    if err := vs.DropNamespace(ctx, prev); err != nil {
      vs.log.Warn("Failed to enqueue stale namespace deletion (ignored)", "namespace", prev, "error", err)
    }
  }

  return namespace, nil
}

// QueryResultIDs returns the ids of the vectors nearest q inside the session's
// current result-set namespace. A session that has never indexed a result set
// reports apperr.ErrNotFound.
func (vs *vectorService) QueryResultIDs(ctx context.Context, token string, q []float32, topK int) ([]string, error) {
  sess, err := vs.sessionStore.Get(ctx, token)
  if err != nil {
    return nil, err
  }
  if sess.LastIndexNamespace == "" {
    return nil, fmt.Errorf("%w: session has no indexed result set", apperr.ErrNotFound)
  }
  return vs.index.QueryIDs(ctx, sess.LastIndexNamespace, q, topK, nil)
}

func (vs *vectorService) DropNamespace(ctx context.Context, namespace string) error {
  if namespace == "" {
    return nil
  }
  return vs.producer.Enqueue(ctx, queue.TopicDeleteFromVectorDB, queue.Message{
    Operation: queue.OpDeleteFromVectorDB,
    Namespace: namespace,
  })
}

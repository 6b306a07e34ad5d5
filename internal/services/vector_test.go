package services

import (
  "context"
  "errors"
  "testing"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/clients/pinecone"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/queue"
)

type fakeVectorStore struct {
  queriedNamespace string
  queriedTopK      int
  ids              []string
}

func (f *fakeVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
  return nil
}

func (f *fakeVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
  out := make([]pinecone.VectorMatch, 0, len(f.ids))
  for _, id := range f.ids {
    out = append(out, pinecone.VectorMatch{ID: id, Score: 1})
  }
  return out, nil
}

func (f *fakeVectorStore) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
  f.queriedNamespace = namespace
  f.queriedTopK = topK
  return f.ids, nil
}

func (f *fakeVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
  return nil
}

func (env *testEnv) newVectorService(t *testing.T) (VectorService, queue.Producer, *fakeVectorStore) {
  t.Helper()
  producer, err := queue.NewProducer(env.log, env.rdb)
  if err != nil {
    t.Fatalf("NewProducer: %v", err)
  }
  t.Cleanup(func() { _ = producer.Close() })
  index := &fakeVectorStore{}
  return NewVectorService(env.log, producer, env.store, index), producer, index
}

func TestIndexSearchResultsRotatesNamespace(t *testing.T) {
  env := newTestEnv(t)
  svc, producer, _ := env.newVectorService(t)
  ctx := context.Background()

  token := env.mustCreateSession(t)
  entries := []queue.VectorEntry{
    {ID: "v1", Values: []float32{0.1, 0.2}, Metadata: queue.VectorMetadata{OriginalText: "cats"}},
  }

  first, err := svc.IndexSearchResults(ctx, token, entries)
  if err != nil {
    t.Fatalf("first IndexSearchResults: %v", err)
  }
  if first == "" {
    t.Fatalf("first namespace empty")
  }

  sess, err := env.store.Get(ctx, token)
  if err != nil {
    t.Fatalf("Get session: %v", err)
  }
  if sess.LastIndexNamespace != first {
    t.Fatalf("session namespace: want=%q got=%q", first, sess.LastIndexNamespace)
  }

  second, err := svc.IndexSearchResults(ctx, token, entries)
  if err != nil {
    t.Fatalf("second IndexSearchResults: %v", err)
  }
  if second == first {
    t.Fatalf("namespace not rotated: %q", second)
  }

  if err := producer.Flush(ctx); err != nil {
    t.Fatalf("Flush: %v", err)
  }

  adds := env.topicMessages(t, queue.TopicAddToVectorDB)
  if len(adds) != 2 {
    t.Fatalf("add messages: want=2 got=%d", len(adds))
  }
  if adds[0].Namespace != first || adds[1].Namespace != second {
    t.Fatalf("add namespaces: got=%q,%q", adds[0].Namespace, adds[1].Namespace)
  }
  if len(adds[0].VectorData) != 1 || adds[0].VectorData[0].ID != "v1" {
    t.Fatalf("add payload: got=%v", adds[0].VectorData)
  }

  // The superseded result set is queued for deletion.
  dels := env.topicMessages(t, queue.TopicDeleteFromVectorDB)
  if len(dels) != 1 || dels[0].Namespace != first {
    t.Fatalf("delete messages: got=%v", dels)
  }
}

func TestIndexSearchResultsRequiresEntries(t *testing.T) {
  env := newTestEnv(t)
  svc, _, _ := env.newVectorService(t)

  token := env.mustCreateSession(t)
  if _, err := svc.IndexSearchResults(context.Background(), token, nil); err == nil {
    t.Fatalf("empty entries: expected error")
  }
}

func TestQueryResultIDsUsesSessionNamespace(t *testing.T) {
  env := newTestEnv(t)
  svc, _, index := env.newVectorService(t)
  ctx := context.Background()

  token := env.mustCreateSession(t)
  entries := []queue.VectorEntry{{ID: "v1", Values: []float32{0.1}}}
  namespace, err := svc.IndexSearchResults(ctx, token, entries)
  if err != nil {
    t.Fatalf("IndexSearchResults: %v", err)
  }

  index.ids = []string{"v1", "v2"}
  ids, err := svc.QueryResultIDs(ctx, token, []float32{0.1}, 5)
  if err != nil {
    t.Fatalf("QueryResultIDs: %v", err)
  }
  if index.queriedNamespace != namespace {
    t.Fatalf("queried namespace: want=%q got=%q", namespace, index.queriedNamespace)
  }
  if index.queriedTopK != 5 {
    t.Fatalf("queried topK: want=5 got=%d", index.queriedTopK)
  }
  if len(ids) != 2 || ids[0] != "v1" || ids[1] != "v2" {
    t.Fatalf("ids: got=%v", ids)
  }
}

func TestQueryResultIDsWithoutResultSetReportsNotFound(t *testing.T) {
  env := newTestEnv(t)
  svc, _, _ := env.newVectorService(t)

  token := env.mustCreateSession(t)
  _, err := svc.QueryResultIDs(context.Background(), token, []float32{0.1}, 5)
  if !errors.Is(err, apperr.ErrNotFound) {
    t.Fatalf("no result set: want ErrNotFound got=%v", err)
  }
}

func TestDropNamespaceIgnoresEmptyName(t *testing.T) {
  env := newTestEnv(t)
  svc, producer, _ := env.newVectorService(t)
  ctx := context.Background()

  if err := svc.DropNamespace(ctx, ""); err != nil {
    t.Fatalf("DropNamespace empty: %v", err)
  }
  if err := producer.Flush(ctx); err != nil {
    t.Fatalf("Flush: %v", err)
  }
  if msgs := env.topicMessages(t, queue.TopicDeleteFromVectorDB); len(msgs) != 0 {
    t.Fatalf("messages for empty namespace: got=%d", len(msgs))
  }
}

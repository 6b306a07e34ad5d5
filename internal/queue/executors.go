package queue

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/clients/pinecone"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
)

// BlobStore is the slice of the bucket service the executors need. Both calls
// must be idempotent: re-uploading the same key/bytes and deleting an absent key
// are successes, because the queue redelivers.
type BlobStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
	DeleteFile(ctx context.Context, key string) error
}

// VectorIndex is the slice of the vector store the executors need. Upsert
// overwrites per vector id, so redelivery cannot duplicate entries.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Executors maps a decoded message to the external call it describes.
type Executors struct {
	log  *logger.Logger
	blob BlobStore
	vec  VectorIndex
}

func NewExecutors(log *logger.Logger, blob BlobStore, vec VectorIndex) (*Executors, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if blob == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if vec == nil {
		return nil, fmt.Errorf("vector index required")
	}
	return &Executors{log: log.With("service", "QueueExecutors"), blob: blob, vec: vec}, nil
}

// Execute performs the side effect for one message. An unrecognized operation
// returns apperr.ErrFatalOperation: that is producer/consumer version skew and
// must surface loudly rather than be skipped.
func (e *Executors) Execute(ctx context.Context, msg Message) error {
	switch msg.Operation {
	case OpUploadPfp:
		content, err := hex.DecodeString(msg.FileContent)
		if err != nil {
			return fmt.Errorf("Failed to decode file_content hex for %q: %w", msg.S3Key, err)
		}
		return e.blob.UploadFile(ctx, msg.S3Key, content, msg.ContentType)

	case OpDeletePfp:
		return e.blob.DeleteFile(ctx, msg.S3Key)

	case OpAddToVectorDB:
		vectors := make([]pinecone.Vector, 0, len(msg.VectorData))
		for _, entry := range msg.VectorData {
			vectors = append(vectors, pinecone.Vector{
				ID:     entry.ID,
				Values: entry.Values,
				Metadata: map[string]any{
					"original_text": entry.Metadata.OriginalText,
				},
			})
		}
		return e.vec.Upsert(ctx, msg.Namespace, vectors)

	case OpDeleteFromVectorDB:
		return e.vec.DeleteNamespace(ctx, msg.Namespace)

	default:
		return fmt.Errorf("%w: %q", apperr.ErrFatalOperation, msg.Operation)
	}
}

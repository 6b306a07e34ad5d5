package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
)

// Topic names are a wire contract shared with older producers; the s3.* names
// predate the move off AWS and are kept for compatibility.
const (
	TopicUploadPfp          = "s3.upload_pfp"
	TopicDeletePfp          = "s3.delete_pfp"
	TopicAddToVectorDB      = "vector.add_to_vector_db"
	TopicDeleteFromVectorDB = "vector.delete_from_vector_db"
)

const (
	OpUploadPfp          = "upload_pfp"
	OpDeletePfp          = "delete_pfp"
	OpAddToVectorDB      = "add_to_vector_db"
	OpDeleteFromVectorDB = "delete_from_vector_db"
)

// Topics lists every stream the consumer group subscribes to.
func Topics() []string {
	return []string{
		TopicUploadPfp,
		TopicDeletePfp,
		TopicAddToVectorDB,
		TopicDeleteFromVectorDB,
	}
}

// DeadLetterTopic returns the dead-letter stream paired with a topic. Messages
// land there after exhausting their delivery budget.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

type VectorMetadata struct {
	OriginalText string `json:"original_text"`
}

type VectorEntry struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// Message is the JSON envelope carried on every topic. Operation selects the
// executor; the remaining fields are operation-specific. Binary content travels
// hex-encoded because the envelope is UTF-8 text.
type Message struct {
	Operation string `json:"operation"`

	// upload_pfp / delete_pfp
	S3Key       string `json:"s3_key,omitempty"`
	FileContent string `json:"file_content,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	// add_to_vector_db / delete_from_vector_db
	Namespace  string        `json:"namespace,omitempty"`
	VectorData []VectorEntry `json:"vector_data,omitempty"`
}

func (m Message) Encode() ([]byte, error) {
	if strings.TrimSpace(m.Operation) == "" {
		return nil, fmt.Errorf("message operation required")
	}
	return json.Marshal(m)
}

func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("Failed to decode queue message: %w", err)
	}
	if strings.TrimSpace(m.Operation) == "" {
		return Message{}, fmt.Errorf("%w: empty operation", apperr.ErrFatalOperation)
	}
	return m, nil
}

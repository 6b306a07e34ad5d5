package services

import (
  "context"
  "encoding/hex"
  "errors"
  "fmt"
  "path/filepath"
  "strings"
  "time"

  "github.com/google/uuid"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/queue"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/repos"
)

var allowedPfpExtensions = map[string]bool{
  ".jpg":  true,
  ".jpeg": true,
  ".png":  true,
  ".gif":  true,
}

// PfpService handles profile picture changes. The blob writes themselves run on
// the offload queue; the request path only validates, enqueues, and records the
// new key, so it never waits on the bucket.
type PfpService interface {
  UploadPfp(ctx context.Context, userID int64, filename, contentType string, content []byte) (string, error)
  DeletePfp(ctx context.Context, userID int64) error
}

type pfpService struct {
  log      *logger.Logger
  userRepo repos.UserRepo
  producer queue.Producer
  bucket   BucketService
}

func NewPfpService(log *logger.Logger, userRepo repos.UserRepo, producer queue.Producer, bucket BucketService) PfpService {
  serviceLog := log.With("service", "PfpService")
  return &pfpService{
    log:      serviceLog,
    userRepo: userRepo,
    producer: producer,
    bucket:   bucket,
  }
}

func generatePfpKey(userID int64, filename string) string {
  fileExtension := strings.ToLower(filepath.Ext(filename))
  uniqueID := uuid.NewString()
  timestamp := time.Now().Unix()

  return fmt.Sprintf("users/%d/pfp/%d_%s%s", userID, timestamp, uniqueID, fileExtension)
}

// UploadPfp validates the file, enqueues the blob write, points the user row at
// the new key, and enqueues deletion of the old object. The returned URL may
// 404 briefly until the consumer performs the actual upload.
func (ps *pfpService) UploadPfp(ctx context.Context, userID int64, filename, contentType string, content []byte) (string, error) {
  fileExtension := strings.ToLower(filepath.Ext(filename))
  if !allowedPfpExtensions[fileExtension] {
    return "", fmt.Errorf("%w: invalid file type %q, only JPG, JPEG, PNG, and GIF are allowed", apperr.ErrValidation, fileExtension)
  }

  user, err := ps.userRepo.GetByID(ctx, nil, userID)
  if err != nil {
    return "", err
  }

  key := generatePfpKey(userID, filename)

  if err := ps.producer.Enqueue(ctx, queue.TopicUploadPfp, queue.Message{
    Operation:   queue.OpUploadPfp,
    S3Key:       key,
    FileContent: hex.EncodeToString(content),
    ContentType: contentType,
  }); err != nil {
    return "", err
  }
  if err := ps.producer.Flush(ctx); err != nil {
    return "", err
  }

  if err := ps.userRepo.UpdatePfpKey(ctx, nil, userID, &key); err != nil {
    return "", fmt.Errorf("Failed to record new pfp key: %w", err)
  }

  // Old object is deleted only after the row points at the new one.
  if user.PfpKey != nil && *user.PfpKey != "" && *user.PfpKey != key {
    if err := ps.enqueueDelete(ctx, *user.PfpKey); err != nil {
      ps.log.Warn("Failed to enqueue old pfp deletion (ignored)", "old_key", *user.PfpKey, "error", err)
    }
  }

  return ps.bucket.GetPublicURL(key), nil
}

func (ps *pfpService) DeletePfp(ctx context.Context, userID int64) error {
  user, err := ps.userRepo.GetByID(ctx, nil, userID)
  if err != nil {
    return err
  }
  if user.PfpKey == nil || *user.PfpKey == "" {
    return nil
  }

  if err := ps.enqueueDelete(ctx, *user.PfpKey); err != nil {
    return err
  }

  if err := ps.userRepo.UpdatePfpKey(ctx, nil, userID, nil); err != nil {
    return fmt.Errorf("Failed to clear pfp key: %w", err)
  }
  return nil
}

func (ps *pfpService) enqueueDelete(ctx context.Context, key string) error {
  if err := ps.producer.Enqueue(ctx, queue.TopicDeletePfp, queue.Message{
    Operation: queue.OpDeletePfp,
    S3Key:     key,
  }); err != nil {
    return err
  }
  if err := ps.producer.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
    return err
  }
  return nil
}

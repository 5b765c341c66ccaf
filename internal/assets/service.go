package assets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/config"
)

// FailureRecorder counts uploads that were dropped
type FailureRecorder interface {
	RecordAssetFailure(ctx context.Context, strategy string)
}

// New builds the store selected by cfg.Strategy
func New(ctx context.Context, cfg config.AssetConfig, logger *zap.SugaredLogger) (Store, error) {
	switch Strategy(cfg.Strategy) {
	case StrategyLocal:
		logger.Infow("Using local asset store", "dir", cfg.UploadDir)
		return NewLocalStore(cfg.UploadDir)
	case StrategyInline:
		logger.Infow("Using inline asset store")
		return NewInlineStore(), nil
	case StrategyBucket:
		logger.Infow("Using bucket asset store", "endpoint", cfg.BucketEndpoint, "bucket", cfg.BucketName)
		store, client, err := NewBucketStore(BucketConfig{
			Endpoint:  cfg.BucketEndpoint,
			Bucket:    cfg.BucketName,
			Region:    cfg.BucketRegion,
			AccessKey: cfg.BucketAccessKey,
			SecretKey: cfg.BucketSecretKey,
			UseSSL:    cfg.BucketUseSSL,
			PublicURL: cfg.BucketPublicURL,
		})
		if err != nil {
			return nil, err
		}
		exists, err := client.BucketExists(ctx, cfg.BucketName)
		switch {
		case err != nil:
			logger.Warnw("Could not verify bucket, uploads may fail", "bucket", cfg.BucketName, "error", err)
		case !exists:
			return nil, fmt.Errorf("bucket %q does not exist", cfg.BucketName)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported asset strategy: %s", cfg.Strategy)
	}
}

// Service attaches uploads to new posts. It never fails the surrounding write.
type Service struct {
	store   Store
	logger  *zap.SugaredLogger
	metrics FailureRecorder
}

func NewService(store Store, logger *zap.SugaredLogger, metrics FailureRecorder) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Service) Strategy() Strategy {
	return s.store.Strategy()
}

// Save checks the extension and stores the upload
func (s *Service) Save(ctx context.Context, upload Upload) (*Reference, error) {
	if !Allowed(upload.Filename) {
		return nil, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, upload.Filename)
	}
	return s.store.Save(ctx, upload)
}

// Attach stores upload and returns its reference, or nil when there is
// nothing to attach or the store failed.
func (s *Service) Attach(ctx context.Context, upload *Upload) *Reference {
	if upload == nil {
		return nil
	}
	if len(upload.Data) == 0 {
		s.logger.Infow("Skipping empty upload", "strategy", s.store.Strategy(), "filename", upload.Filename)
		return nil
	}

	ref, err := s.Save(ctx, *upload)
	if err != nil {
		s.logger.Warnw("Dropping image from post",
			"strategy", s.store.Strategy(),
			"filename", upload.Filename,
			"size", len(upload.Data),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.RecordAssetFailure(ctx, string(s.store.Strategy()))
		}
		return nil
	}

	s.logger.Infow("Stored image", "strategy", s.store.Strategy(), "size", len(upload.Data))
	return ref
}

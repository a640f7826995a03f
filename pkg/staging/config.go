package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Config selects and configures the staging store.
// Empty credentials fall back to each SDK's default chain.
type Config struct {
	Backend   string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	// CreatedBy is recorded on every staged object.
	CreatedBy string
}

// New builds the stager for cfg.Backend.
func New(ctx context.Context, cfg Config) (transfer.Stager, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendS3:
		return NewS3(ctx, cfg)
	case BackendMinio:
		return NewMinio(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// objectMetadata copies meta and stamps the uploader identity.
func objectMetadata(meta map[string]string, createdBy string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	if _, ok := out[transfer.MetaCreatedBy]; !ok && createdBy != "" {
		out[transfer.MetaCreatedBy] = createdBy
	}
	return out
}

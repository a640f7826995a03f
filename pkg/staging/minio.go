package staging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

// MinioAPI is the subset of minio.Core used for multipart staging.
type MinioAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

var (
	_ MinioAPI        = (*minio.Core)(nil)
	_ transfer.Stager = (*MinioStager)(nil)
)

// MinioStager stages objects on any S3-compatible endpoint.
type MinioStager struct {
	core      MinioAPI
	createdBy string
}

func NewMinioStager(core MinioAPI, createdBy string) *MinioStager {
	return &MinioStager{core: core, createdBy: createdBy}
}

// NewMinio connects to cfg.Endpoint, e.g. "https://minio.local:9000".
// A bare host:port is treated as https.
func NewMinio(cfg Config) (*MinioStager, error) {
	if cfg.Endpoint == "" {
		return nil, &Error{Op: "connect", Bucket: cfg.Bucket, Err: fmt.Errorf("endpoint is required for the minio backend")}
	}
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, &Error{Op: "connect", Bucket: cfg.Bucket, Err: err}
	}

	opts := &minio.Options{
		Secure: secure,
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Creds = credentials.NewEnvMinio()
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(host, opts)
	if err != nil {
		return nil, minioError("connect", cfg.Bucket, "", err)
	}
	slog.Info("Using MinIO staging", "bucket", cfg.Bucket, "endpoint", host, "secure", secure)
	return NewMinioStager(core, cfg.CreatedBy), nil
}

func splitEndpoint(endpoint string) (string, bool, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		// host:port without a scheme
		return endpoint, true, nil
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

func (m *MinioStager) InitiateMultipart(ctx context.Context, req transfer.StageRequest) (transfer.MultipartUpload, error) {
	uploadID, err := m.core.NewMultipartUpload(ctx, req.Bucket, req.Key, minio.PutObjectOptions{
		ContentType:  req.ContentType,
		UserMetadata: objectMetadata(req.Metadata, m.createdBy),
	})
	if err != nil {
		return transfer.MultipartUpload{}, minioError("newMultipartUpload", req.Bucket, req.Key, err)
	}
	return transfer.MultipartUpload{Bucket: req.Bucket, Key: req.Key, UploadID: uploadID}, nil
}

func (m *MinioStager) UploadPart(ctx context.Context, up transfer.MultipartUpload, part transfer.PartUpload) (transfer.CompletedPart, error) {
	op, err := m.core.PutObjectPart(ctx, up.Bucket, up.Key, up.UploadID, int(part.Number), part.Body, part.Size,
		minio.PutObjectPartOptions{Sha256Hex: transfer.HexDigest(part.SHA256)})
	if err != nil {
		return transfer.CompletedPart{}, minioError("putObjectPart", up.Bucket, up.Key, err)
	}
	return transfer.CompletedPart{
		Number:         part.Number,
		ETag:           op.ETag,
		ChecksumSHA256: op.ChecksumSHA256,
	}, nil
}

func (m *MinioStager) CompleteMultipart(ctx context.Context, up transfer.MultipartUpload, parts []transfer.CompletedPart) (*transfer.Receipt, error) {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{
			PartNumber:     int(p.Number),
			ETag:           p.ETag,
			ChecksumSHA256: p.ChecksumSHA256,
		})
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].PartNumber < completed[j].PartNumber })

	info, err := m.core.CompleteMultipartUpload(ctx, up.Bucket, up.Key, up.UploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return nil, minioError("completeMultipartUpload", up.Bucket, up.Key, err)
	}
	return &transfer.Receipt{
		Pathway:   transfer.Staged,
		Reference: up.Key,
		Location:  info.Location,
		ETag:      info.ETag,
		At:        time.Now(),
	}, nil
}

func (m *MinioStager) AbortMultipart(ctx context.Context, up transfer.MultipartUpload) error {
	if err := m.core.AbortMultipartUpload(ctx, up.Bucket, up.Key, up.UploadID); err != nil {
		return minioError("abortMultipartUpload", up.Bucket, up.Key, err)
	}
	return nil
}

package staging

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

// S3API is the subset of the S3 client used for multipart staging.
type S3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var (
	_ S3API           = (*s3.Client)(nil)
	_ transfer.Stager = (*S3Stager)(nil)
)

// S3Stager stages objects in an S3 bucket with SHA-256 part checksums.
type S3Stager struct {
	client    S3API
	createdBy string
}

func NewS3Stager(client S3API, createdBy string) *S3Stager {
	return &S3Stager{client: client, createdBy: createdBy}
}

// NewS3 loads the default AWS configuration and applies cfg on top of it.
func NewS3(ctx context.Context, cfg Config) (*S3Stager, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &Error{Op: "load config", Bucket: cfg.Bucket, Err: err}
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	slog.Info("Using S3 staging", "bucket", cfg.Bucket, "region", awsCfg.Region, "endpoint", cfg.Endpoint)
	return NewS3Stager(client, cfg.CreatedBy), nil
}

func (s *S3Stager) InitiateMultipart(ctx context.Context, req transfer.StageRequest) (transfer.MultipartUpload, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:            aws.String(req.Bucket),
		Key:               aws.String(req.Key),
		Metadata:          objectMetadata(req.Metadata, s.createdBy),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return transfer.MultipartUpload{}, s3Error("createMultipartUpload", req.Bucket, req.Key, err)
	}
	return transfer.MultipartUpload{
		Bucket:   req.Bucket,
		Key:      req.Key,
		UploadID: aws.ToString(out.UploadId),
	}, nil
}

func (s *S3Stager) UploadPart(ctx context.Context, up transfer.MultipartUpload, part transfer.PartUpload) (transfer.CompletedPart, error) {
	checksum := transfer.Base64Digest(part.SHA256)
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:            aws.String(up.Bucket),
		Key:               aws.String(up.Key),
		UploadId:          aws.String(up.UploadID),
		PartNumber:        aws.Int32(part.Number),
		Body:              part.Body,
		ContentLength:     aws.Int64(part.Size),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(checksum),
	})
	if err != nil {
		return transfer.CompletedPart{}, s3Error("uploadPart", up.Bucket, up.Key, err)
	}

	cp := transfer.CompletedPart{
		Number:         part.Number,
		ETag:           aws.ToString(out.ETag),
		ChecksumSHA256: aws.ToString(out.ChecksumSHA256),
	}
	if cp.ChecksumSHA256 == "" {
		cp.ChecksumSHA256 = checksum
	}
	return cp, nil
}

func (s *S3Stager) CompleteMultipart(ctx context.Context, up transfer.MultipartUpload, parts []transfer.CompletedPart) (*transfer.Receipt, error) {
	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		cp := s3types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		}
		if p.ChecksumSHA256 != "" {
			cp.ChecksumSHA256 = aws.String(p.ChecksumSHA256)
		}
		completed = append(completed, cp)
	}

	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(up.Bucket),
		Key:             aws.String(up.Key),
		UploadId:        aws.String(up.UploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, s3Error("completeMultipartUpload", up.Bucket, up.Key, err)
	}

	return &transfer.Receipt{
		Pathway:   transfer.Staged,
		Reference: up.Key,
		Location:  aws.ToString(out.Location),
		ETag:      aws.ToString(out.ETag),
		At:        time.Now(),
	}, nil
}

func (s *S3Stager) AbortMultipart(ctx context.Context, up transfer.MultipartUpload) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(up.Bucket),
		Key:      aws.String(up.Key),
		UploadId: aws.String(up.UploadID),
	})
	if err != nil {
		return s3Error("abortMultipartUpload", up.Bucket, up.Key, err)
	}
	return nil
}

package staging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

type fakeMinio struct {
	opts      minio.PutObjectOptions
	partOpts  []minio.PutObjectPartOptions
	bodies    [][]byte
	completed []minio.CompletePart
	aborted   []string

	initErr error
}

func (f *fakeMinio) NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	f.opts = opts
	return "mu-1", nil
}

func (f *fakeMinio) PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return minio.ObjectPart{}, err
	}
	f.partOpts = append(f.partOpts, opts)
	f.bodies = append(f.bodies, body)
	return minio.ObjectPart{PartNumber: partID, ETag: "etag", Size: size}, nil
}

func (f *fakeMinio) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.completed = parts
	return minio.UploadInfo{Bucket: bucket, Key: object, ETag: "final"}, nil
}

func (f *fakeMinio) AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error {
	f.aborted = append(f.aborted, uploadID)
	return nil
}

func TestMinioStagerMultipartFlow(t *testing.T) {
	fake := &fakeMinio{}
	stager := NewMinioStager(fake, "alice")
	ctx := context.Background()

	up, err := stager.InitiateMultipart(ctx, transfer.StageRequest{
		Bucket:      "staging",
		Key:         "unit-1/big.bin",
		ContentType: "video/mp4",
		Metadata:    map[string]string{transfer.MetaStatus: transfer.StatusReady},
	})
	require.NoError(t, err)
	assert.Equal(t, "mu-1", up.UploadID)
	assert.Equal(t, "video/mp4", fake.opts.ContentType)
	assert.Equal(t, "alice", fake.opts.UserMetadata[transfer.MetaCreatedBy])
	assert.Equal(t, transfer.StatusReady, fake.opts.UserMetadata[transfer.MetaStatus])

	var parts []transfer.CompletedPart
	for i, chunk := range [][]byte{[]byte("first"), []byte("second")} {
		sum := sha256.Sum256(chunk)
		cp, err := stager.UploadPart(ctx, up, transfer.PartUpload{
			Number: int32(i + 1),
			Size:   int64(len(chunk)),
			Body:   bytes.NewReader(chunk),
			SHA256: sum[:],
		})
		require.NoError(t, err)
		assert.Equal(t, transfer.HexDigest(sum[:]), fake.partOpts[i].Sha256Hex)
		parts = append(parts, cp)
	}

	// completion order follows part numbers regardless of input order
	receipt, err := stager.CompleteMultipart(ctx, up, []transfer.CompletedPart{parts[1], parts[0]})
	require.NoError(t, err)
	assert.Equal(t, "final", receipt.ETag)
	require.Len(t, fake.completed, 2)
	assert.Equal(t, 1, fake.completed[0].PartNumber)
	assert.Equal(t, 2, fake.completed[1].PartNumber)

	require.NoError(t, stager.AbortMultipart(ctx, up))
	assert.Equal(t, []string{"mu-1"}, fake.aborted)
}

func TestMinioStagerErrorsCarryStatus(t *testing.T) {
	fake := &fakeMinio{initErr: minio.ErrorResponse{StatusCode: http.StatusNotFound, Code: "NoSuchBucket", Message: "bucket missing"}}
	stager := NewMinioStager(fake, "")

	_, err := stager.InitiateMultipart(context.Background(), transfer.StageRequest{Bucket: "nope", Key: "k"})

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "NoSuchBucket", se.Code)
	assert.Equal(t, transfer.KindRejected, transfer.CategorizeError(err))
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		secure bool
		ok     bool
	}{
		{"https://minio.local:9000", "minio.local:9000", true, true},
		{"http://127.0.0.1:9000", "127.0.0.1:9000", false, true},
		{"minio.local:9000", "minio.local:9000", true, true},
		{"ftp://minio.local", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, secure, err := splitEndpoint(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestNewSelectsBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "s3"})
	assert.ErrorIs(t, err, ErrNoBucket)

	_, err = New(context.Background(), Config{Backend: "gcs", Bucket: "b"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(context.Background(), Config{Backend: "minio", Bucket: "b"})
	var se *Error
	assert.ErrorAs(t, err, &se)

	st, err := New(context.Background(), Config{Backend: "minio", Bucket: "b", Endpoint: "http://127.0.0.1:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.IsType(t, &MinioStager{}, st)
}

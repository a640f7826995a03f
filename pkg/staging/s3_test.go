package staging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

type fakeS3 struct {
	mu       sync.Mutex
	create   []*s3.CreateMultipartUploadInput
	parts    []*s3.UploadPartInput
	bodies   [][]byte
	complete []*s3.CompleteMultipartUploadInput
	abort    []*s3.AbortMultipartUploadInput

	uploadErr error
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.create = append(f.create, in)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts = append(f.parts, in)
	f.bodies = append(f.bodies, body)
	return &s3.UploadPartOutput{ETag: aws.String("\"etag\"")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete = append(f.complete, in)
	return &s3.CompleteMultipartUploadOutput{
		Location: aws.String("https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key)),
		ETag:     aws.String("\"final-2\""),
	}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abort = append(f.abort, in)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func responseError(code int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("service said no"),
		},
	}
}

func TestS3StagerMultipartFlow(t *testing.T) {
	fake := &fakeS3{}
	stager := NewS3Stager(fake, "alice")
	ctx := context.Background()

	up, err := stager.InitiateMultipart(ctx, transfer.StageRequest{
		Bucket:      "staging",
		Key:         "unit-1/big.bin",
		ContentType: "application/zip",
		Metadata: map[string]string{
			transfer.MetaStatus:              transfer.StatusReady,
			transfer.MetaCollectionReference: "SO-1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "upload-1", up.UploadID)

	require.Len(t, fake.create, 1)
	in := fake.create[0]
	assert.Equal(t, s3types.ChecksumAlgorithmSha256, in.ChecksumAlgorithm)
	assert.Equal(t, "application/zip", aws.ToString(in.ContentType))
	assert.Equal(t, "alice", in.Metadata[transfer.MetaCreatedBy])
	assert.Equal(t, "SO-1", in.Metadata[transfer.MetaCollectionReference])

	data := []byte("part one data")
	sum := sha256.Sum256(data)
	cp, err := stager.UploadPart(ctx, up, transfer.PartUpload{
		Number: 1,
		Size:   int64(len(data)),
		Body:   bytes.NewReader(data),
		SHA256: sum[:],
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), cp.Number)
	assert.Equal(t, transfer.Base64Digest(sum[:]), cp.ChecksumSHA256)
	assert.Equal(t, transfer.Base64Digest(sum[:]), aws.ToString(fake.parts[0].ChecksumSHA256))
	assert.Equal(t, int64(len(data)), aws.ToInt64(fake.parts[0].ContentLength))
	assert.Equal(t, data, fake.bodies[0])

	receipt, err := stager.CompleteMultipart(ctx, up, []transfer.CompletedPart{cp})
	require.NoError(t, err)
	assert.Equal(t, transfer.Staged, receipt.Pathway)
	assert.Equal(t, "unit-1/big.bin", receipt.Reference)
	assert.Contains(t, receipt.Location, "unit-1/big.bin")

	parts := fake.complete[0].MultipartUpload.Parts
	require.Len(t, parts, 1)
	assert.Equal(t, int32(1), aws.ToInt32(parts[0].PartNumber))
	assert.Equal(t, cp.ChecksumSHA256, aws.ToString(parts[0].ChecksumSHA256))
}

func TestS3StagerKeepsExplicitCreator(t *testing.T) {
	fake := &fakeS3{}
	stager := NewS3Stager(fake, "alice")

	_, err := stager.InitiateMultipart(context.Background(), transfer.StageRequest{
		Bucket:   "b",
		Key:      "k",
		Metadata: map[string]string{transfer.MetaCreatedBy: "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", fake.create[0].Metadata[transfer.MetaCreatedBy])
}

func TestS3StagerErrorsCarryStatus(t *testing.T) {
	tests := []struct {
		code int
		want transfer.ErrorKind
	}{
		{http.StatusServiceUnavailable, transfer.KindTransient},
		{http.StatusInternalServerError, transfer.KindTransient},
		{http.StatusForbidden, transfer.KindRejected},
		{http.StatusNotFound, transfer.KindRejected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			stager := NewS3Stager(&fakeS3{uploadErr: responseError(tt.code)}, "")
			up := transfer.MultipartUpload{Bucket: "b", Key: "k", UploadID: "u"}

			_, err := stager.UploadPart(context.Background(), up, transfer.PartUpload{
				Number: 2,
				Body:   bytes.NewReader(nil),
			})

			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "uploadPart", se.Op)
			assert.Equal(t, tt.code, se.HTTPStatus())
			assert.Equal(t, tt.want, transfer.CategorizeError(err))
			assert.Contains(t, err.Error(), "staging.uploadPart b/k")
		})
	}
}

func TestS3StagerAbort(t *testing.T) {
	fake := &fakeS3{}
	stager := NewS3Stager(fake, "")

	err := stager.AbortMultipart(context.Background(), transfer.MultipartUpload{Bucket: "b", Key: "k", UploadID: "u"})
	require.NoError(t, err)
	require.Len(t, fake.abort, 1)
	assert.Equal(t, "u", aws.ToString(fake.abort[0].UploadId))
}

func TestNetworkErrorWithoutStatusIsTransient(t *testing.T) {
	err := s3Error("uploadPart", "b", "k", errors.New("connection reset by peer"))
	assert.Zero(t, err.HTTPStatus())
	assert.Equal(t, transfer.KindTransient, transfer.CategorizeError(err))
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
)

type fakeUploader struct {
	lastInput *transfermanager.UploadObjectInput
	body      []byte
	err       error
}

func (f *fakeUploader) UploadObject(_ context.Context, input *transfermanager.UploadObjectInput, _ ...func(*transfermanager.Options)) (*transfermanager.UploadObjectOutput, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &transfermanager.UploadObjectOutput{}, nil
}

// fakeS3API fails every call it has no function for.
type fakeS3API struct {
	headFn         func(*awss3.HeadObjectInput) (*awss3.HeadObjectOutput, error)
	getFn          func(*awss3.GetObjectInput) (*awss3.GetObjectOutput, error)
	deleteFn       func(*awss3.DeleteObjectInput) (*awss3.DeleteObjectOutput, error)
	listFn         func(*awss3.ListObjectsV2Input) (*awss3.ListObjectsV2Output, error)
	headBucketFn   func(*awss3.HeadBucketInput) (*awss3.HeadBucketOutput, error)
	createBucketFn func(*awss3.CreateBucketInput) (*awss3.CreateBucketOutput, error)
}

var errUnexpected = errors.New("unexpected call")

func (f *fakeS3API) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	if f.headFn == nil {
		return nil, errUnexpected
	}
	return f.headFn(in)
}

func (f *fakeS3API) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getFn == nil {
		return nil, errUnexpected
	}
	return f.getFn(in)
}

func (f *fakeS3API) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	if f.deleteFn == nil {
		return nil, errUnexpected
	}
	return f.deleteFn(in)
}

func (f *fakeS3API) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	if f.listFn == nil {
		return nil, errUnexpected
	}
	return f.listFn(in)
}

func (f *fakeS3API) HeadBucket(_ context.Context, in *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	if f.headBucketFn == nil {
		return nil, errUnexpected
	}
	return f.headBucketFn(in)
}

func (f *fakeS3API) CreateBucket(_ context.Context, in *awss3.CreateBucketInput, _ ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error) {
	if f.createBucketFn == nil {
		return nil, errUnexpected
	}
	return f.createBucketFn(in)
}

func (f *fakeS3API) DeleteBucket(context.Context, *awss3.DeleteBucketInput, ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error) {
	return &awss3.DeleteBucketOutput{}, nil
}

func statusError(code int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New(http.StatusText(code)),
		},
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, errs.ErrKindNotFound},
		{"head not found", &types.NotFound{}, errs.ErrKindNotFound},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, errs.ErrKindTransient},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, errs.ErrKindPermanent},
		{"server fault", &smithy.GenericAPIError{Code: "Odd", Fault: smithy.FaultServer}, errs.ErrKindTransient},
		{"status 404", statusError(http.StatusNotFound), errs.ErrKindNotFound},
		{"status 503", statusError(http.StatusServiceUnavailable), errs.ErrKindTransient},
		{"status 429", statusError(http.StatusTooManyRequests), errs.ErrKindTransient},
		{"status 403", statusError(http.StatusForbidden), errs.ErrKindPermanent},
		{"deadline", context.DeadlineExceeded, errs.ErrKindTransient},
		{"canceled", &smithy.CanceledError{Err: context.Canceled}, errs.ErrKindPermanent},
		{"network", io.ErrUnexpectedEOF, errs.ErrKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op failed")
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, mapError(nil, "unused"))
}

func TestHeadObject(t *testing.T) {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := newDriver(&fakeS3API{headFn: func(in *awss3.HeadObjectInput) (*awss3.HeadObjectOutput, error) {
		assert.Equal(t, "bkt", aws.ToString(in.Bucket))
		assert.Equal(t, "k", aws.ToString(in.Key))
		return &awss3.HeadObjectOutput{
			ContentType:   aws.String("text/plain"),
			ContentLength: aws.Int64(5),
			ETag:          aws.String(`"abc"`),
			LastModified:  &modified,
		}, nil
	}}, nil, "", 10, nil)

	meta, err := d.HeadObject(context.Background(), "bkt", "k")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, int64(5), meta.Length())
	assert.Equal(t, "abc", meta.ETag)
	assert.Equal(t, &modified, meta.LastModified)
}

func TestGetObject(t *testing.T) {
	d := newDriver(&fakeS3API{getFn: func(*awss3.GetObjectInput) (*awss3.GetObjectOutput, error) {
		return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("payload"))}, nil
	}}, nil, "", 10, nil)

	var buf bytes.Buffer
	n, err := d.GetObject(context.Background(), "bkt", "k", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", buf.String())

	d.api = &fakeS3API{getFn: func(*awss3.GetObjectInput) (*awss3.GetObjectOutput, error) {
		return nil, &types.NoSuchKey{}
	}}
	_, err = d.GetObject(context.Background(), "bkt", "k", &buf)
	assert.True(t, errs.IsNotFound(err))
}

func TestPutObject(t *testing.T) {
	up := &fakeUploader{}
	d := newDriver(&fakeS3API{}, up, "", 10, nil)

	meta := filestore.Metadata{ContentType: "text/plain", ContentEncoding: "UTF-8"}.WithLength(7)
	require.NoError(t, d.PutObject(context.Background(), "bkt", "k", strings.NewReader("payload"), meta))

	require.NotNil(t, up.lastInput)
	assert.Equal(t, "bkt", aws.ToString(up.lastInput.Bucket))
	assert.Equal(t, "k", aws.ToString(up.lastInput.Key))
	assert.Equal(t, "text/plain", aws.ToString(up.lastInput.ContentType))
	assert.Equal(t, "UTF-8", aws.ToString(up.lastInput.ContentEncoding))
	assert.Equal(t, int64(7), *up.lastInput.ContentLength)
	assert.Equal(t, "payload", string(up.body))

	up.err = statusError(http.StatusInternalServerError)
	err := d.PutObject(context.Background(), "bkt", "k", strings.NewReader("x"), filestore.Metadata{})
	assert.True(t, errs.IsTransient(err))
	assert.Nil(t, up.lastInput.ContentType)
}

func TestListPage(t *testing.T) {
	var inputs []*awss3.ListObjectsV2Input
	d := newDriver(&fakeS3API{listFn: func(in *awss3.ListObjectsV2Input) (*awss3.ListObjectsV2Output, error) {
		inputs = append(inputs, in)
		if in.ContinuationToken == nil {
			return &awss3.ListObjectsV2Output{
				Contents:              []types.Object{{Key: aws.String("a")}, {Key: nil}, {Key: aws.String("b")}},
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("tok"),
			}, nil
		}
		return &awss3.ListObjectsV2Output{Contents: []types.Object{{Key: aws.String("c")}}}, nil
	}}, nil, "", 2, nil)

	region := filestore.NewRegion(d, nil)
	keys, err := filestore.Collect(region.Bucket("bkt").List(context.Background(), "p/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.Len(t, inputs, 2)
	assert.Equal(t, "p/", aws.ToString(inputs[0].Prefix))
	assert.Equal(t, int32(2), aws.ToInt32(inputs[0].MaxKeys))
	assert.Equal(t, "tok", aws.ToString(inputs[1].ContinuationToken))
}

func TestBucketExists(t *testing.T) {
	d := newDriver(&fakeS3API{headBucketFn: func(in *awss3.HeadBucketInput) (*awss3.HeadBucketOutput, error) {
		if aws.ToString(in.Bucket) == "present" {
			return &awss3.HeadBucketOutput{}, nil
		}
		if aws.ToString(in.Bucket) == "denied" {
			return nil, statusError(http.StatusForbidden)
		}
		return nil, &types.NotFound{}
	}}, nil, "", 10, nil)

	ok, err := d.BucketExists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.BucketExists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.BucketExists(context.Background(), "denied")
	assert.True(t, errs.IsPermanent(err))
}

func TestCreateBucket_LocationConstraint(t *testing.T) {
	var got *awss3.CreateBucketInput
	api := &fakeS3API{createBucketFn: func(in *awss3.CreateBucketInput) (*awss3.CreateBucketOutput, error) {
		got = in
		return &awss3.CreateBucketOutput{}, nil
	}}

	require.NoError(t, newDriver(api, nil, "eu-west-1", 10, nil).CreateBucket(context.Background(), "b"))
	require.NotNil(t, got.CreateBucketConfiguration)
	assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), got.CreateBucketConfiguration.LocationConstraint)

	require.NoError(t, newDriver(api, nil, "us-east-1", 10, nil).CreateBucket(context.Background(), "b"))
	assert.Nil(t, got.CreateBucketConfiguration)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://host:1", endpointURL("http://host:1", true))
}

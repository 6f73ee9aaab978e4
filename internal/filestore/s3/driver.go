// Package s3 provides an AWS S3 implementation of filestore.Backend built on
// aws-sdk-go-v2. Any S3-compatible endpoint works when Config.Endpoint is
// set; path-style addressing is used in that case.
package s3

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

// api is the subset of the S3 client the driver calls.
type api interface {
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *awss3.CreateBucketInput, optFns ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *awss3.DeleteBucketInput, optFns ...func(*awss3.Options)) (*awss3.DeleteBucketOutput, error)
}

type uploader interface {
	UploadObject(ctx context.Context, input *transfermanager.UploadObjectInput, opts ...func(*transfermanager.Options)) (*transfermanager.UploadObjectOutput, error)
}

// Driver is an S3 implementation of filestore.Backend and
// filestore.BucketAdmin. It is safe for concurrent use.
type Driver struct {
	api      api
	uploader uploader
	region   string
	pageSize int32
	log      *logger.Logger
}

// New builds an S3 client from cfg. Static credentials are used when an
// access key is configured; otherwise the SDK's default chain applies.
func New(ctx context.Context, cfg *filestore.Config, log *logger.Logger) (*Driver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindPermanent, "failed to load aws config", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	log = logger.OrNop(log)
	log.InfoWith("s3 client configured", logger.Fields{
		"region":   awsCfg.Region,
		"endpoint": cfg.Endpoint,
	})

	return newDriver(client, transfermanager.New(client), awsCfg.Region, cfg.PageSizeOrDefault(), log), nil
}

func newDriver(client api, up uploader, region string, pageSize int, log *logger.Logger) *Driver {
	return &Driver{
		api:      client,
		uploader: up,
		region:   region,
		pageSize: int32(pageSize),
		log:      logger.OrNop(log),
	}
}

// endpointURL accepts either a bare host:port, as MinIO configs use, or a
// full URL.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Close is a no-op; the SDK's HTTP client is shared and needs no shutdown.
func (d *Driver) Close() error {
	return nil
}

// --- filestore.Backend implementation ---

func (d *Driver) HeadObject(ctx context.Context, bucket, key string) (filestore.Metadata, error) {
	out, err := d.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return filestore.Metadata{}, mapError(err, "failed to head object")
	}
	return filestore.Metadata{
		ContentType:     aws.ToString(out.ContentType),
		ContentEncoding: aws.ToString(out.ContentEncoding),
		ContentLength:   out.ContentLength,
		LastModified:    out.LastModified,
		ETag:            strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

func (d *Driver) GetObject(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	out, err := d.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, mapError(err, "failed to get object")
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, mapError(err, "failed to read object")
	}
	return n, nil
}

// PutObject uploads through the transfer manager, which switches to a
// multipart upload for large or unsized bodies.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, r io.Reader, meta filestore.Metadata) error {
	input := &transfermanager.UploadObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: meta.ContentLength,
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if meta.ContentEncoding != "" {
		input.ContentEncoding = aws.String(meta.ContentEncoding)
	}

	if _, err := d.uploader.UploadObject(ctx, input); err != nil {
		return mapError(err, "failed to upload object")
	}
	return nil
}

func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := d.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// ListPage issues one ListObjectsV2 call. The cursor is the continuation
// token of the previous page.
func (d *Driver) ListPage(ctx context.Context, bucket, prefix, cursor string) (filestore.Page, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(d.pageSize),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := d.api.ListObjectsV2(ctx, input)
	if err != nil {
		return filestore.Page{}, mapError(err, "failed to list objects")
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		keys = append(keys, *obj.Key)
	}
	return filestore.Page{
		Keys:      keys,
		Cursor:    aws.ToString(out.NextContinuationToken),
		Truncated: aws.ToBool(out.IsTruncated),
	}, nil
}

func (d *Driver) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := d.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		mapped := mapError(err, "failed to head bucket")
		if errs.IsNotFound(mapped) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// --- filestore.BucketAdmin implementation ---

func (d *Driver) CreateBucket(ctx context.Context, bucket string) error {
	input := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if d.region != "" && d.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(d.region),
		}
	}
	if _, err := d.api.CreateBucket(ctx, input); err != nil {
		return mapError(err, "failed to create bucket")
	}
	return nil
}

func (d *Driver) DeleteBucket(ctx context.Context, bucket string) error {
	if _, err := d.api.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return mapError(err, "failed to delete bucket")
	}
	return nil
}

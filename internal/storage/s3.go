package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/teamnewpipe/crashreportimporter/pkg/utils"
)

const defaultS3Region = "us-east-1"

// S3Options configures an S3FileManager. Endpoint is only needed for
// S3-compatible services other than AWS.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// S3FileManager stores documents as objects in a bucket. Keys mirror the
// local shard layout below Prefix.
type S3FileManager struct {
	Client s3iface.S3API
	Bucket string
	Prefix string
}

func NewS3FileManager(opts S3Options) (*S3FileManager, error) {
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}

	cfg := aws.NewConfig().
		WithRegion(region).
		WithS3ForcePathStyle(true)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, utils.WrapError("create s3 session", err)
	}
	return &S3FileManager{
		Client: s3.New(sess),
		Bucket: opts.Bucket,
		Prefix: opts.Prefix,
	}, nil
}

func (m *S3FileManager) Location() string {
	return "s3://" + path.Join(m.Bucket, m.Prefix)
}

func (m *S3FileManager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(m.key(name)),
	})
	if err == nil {
		return true, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, utils.WrapError("head object", err)
}

// WriteNew checks for the key before uploading. Concurrent writers of the
// same key are not guarded against; a single importer instance is assumed.
func (m *S3FileManager) WriteNew(ctx context.Context, name string, data []byte) error {
	exists, err := m.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyStored
	}

	_, err = m.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(m.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return utils.WrapError("put object", err)
	}
	return nil
}

func (m *S3FileManager) key(name string) string {
	return path.Join(m.Prefix, name)
}

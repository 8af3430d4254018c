package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// AssetChecker reports whether a map asset exists.
type AssetChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// NoAssets accepts every key.
type NoAssets struct{}

func (NoAssets) Exists(context.Context, string) (bool, error) { return true, nil }

// DirAssets resolves keys below a local directory.
type DirAssets struct {
	Root string
}

// Exists reports whether key names a regular file under Root. Keys that
// escape Root never exist.
func (d DirAssets) Exists(_ context.Context, key string) (bool, error) {
	clean := path.Clean("/" + filepath.ToSlash(key))
	full := filepath.Join(d.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	fi, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

type headObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Assets checks keys in one bucket, optionally under a key prefix.
type S3Assets struct {
	client headObjectAPI
	bucket string
	prefix string
}

// S3Config describes the asset bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. MinIO
	Prefix    string
	PathStyle bool
	// Static keys; empty means the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Assets builds a checker for cfg's bucket.
func NewS3Assets(ctx context.Context, cfg S3Config) (*S3Assets, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Assets{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Exists issues a HeadObject for the key.
func (s *S3Assets) Exists(ctx context.Context, key string) (bool, error) {
	k := strings.TrimPrefix(path.Join(s.prefix, key), "/")
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

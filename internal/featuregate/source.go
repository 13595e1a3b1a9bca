package featuregate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source loads a plan catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// EmbeddedSource returns the catalog compiled into the binary.
func EmbeddedSource() Source { return embeddedSource{} }

type embeddedSource struct{}

func (embeddedSource) Load(context.Context) (*Catalog, error) {
	return ParseCatalog(defaultPlansYAML)
}

// FileSource reads a YAML catalog from disk.
func FileSource(path string) Source { return fileSource{path: path} }

type fileSource struct{ path string }

func (s fileSource) Load(context.Context) (*Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading plan catalog %s: %w", s.path, err)
	}
	return ParseCatalog(data)
}

// ObjectGetter is the subset of the S3 client used to fetch a catalog.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a YAML catalog object from S3.
func S3Source(client ObjectGetter, bucket, key string) Source {
	return s3Source{client: client, bucket: bucket, key: key}
}

type s3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

func (s s3Source) Load(ctx context.Context) (*Catalog, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting plan catalog s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading plan catalog body: %w", err)
	}
	return ParseCatalog(data)
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Profile         string
}

// NewS3Client builds an S3 client. Static keys take precedence over a shared
// profile; with neither, the default credential chain is used.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	switch {
	case opts.AccessKeyID != "" && opts.SecretAccessKey != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	case opts.Profile != "":
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

package staging

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/storage"
)

// ObjectStore is the subset of the S3 API the stager needs
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Object is a staged upload
type Object struct {
	Key  string
	URL  string
	MIME string
	Size int64
}

// Stager uploads local media to an S3-compatible bucket so the Graph API
// can fetch it from a public URL.
type Stager struct {
	client     ObjectStore
	bucket     string
	prefix     string
	publicBase string
	logger     logger.Logger
}

// New creates a stager backed by the configured bucket
func New(ctx context.Context, cfg config.StagingConfig, log logger.Logger) (*Stager, error) {
	if !cfg.Enabled() {
		return nil, errs.New(errs.ErrorTypeConfig, 0, "staging bucket is not configured")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "failed to load object storage config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg, log), nil
}

// NewWithClient creates a stager around an existing object store client
func NewWithClient(client ObjectStore, cfg config.StagingConfig, log logger.Logger) *Stager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Stager{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:     log.WithField("component", "staging"),
	}
}

// PublicURL returns the URL the bucket serves key from
func (s *Stager) PublicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.publicBase + "/" + strings.Join(parts, "/")
}

// Stage uploads file under a random key and returns its public URL
func (s *Stager) Stage(ctx context.Context, file models.MediaFile) (Object, error) {
	kind, err := storage.Detect(file.Path)
	if err != nil {
		return Object{}, errs.Wrap(errs.ErrorTypeValidation, err, "cannot stage "+file.Path)
	}

	id, err := gonanoid.New()
	if err != nil {
		return Object{}, fmt.Errorf("failed to generate object key: %w", err)
	}
	key := s.prefix + id + "." + kind.Extension

	f, err := os.Open(file.Path)
	if err != nil {
		return Object{}, fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("failed to stat %s: %w", file.Path, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(kind.MIME),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		if ctx.Err() != nil {
			return Object{}, ctx.Err()
		}
		return Object{}, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to upload to object storage")
	}

	obj := Object{Key: key, URL: s.PublicURL(key), MIME: kind.MIME, Size: info.Size()}
	s.logger.InfoWithFields("media staged", map[string]interface{}{
		"media_id": file.MediaID,
		"key":      key,
		"mime":     kind.MIME,
		"size":     obj.Size,
	})
	return obj, nil
}

// Remove deletes a staged object
func (s *Stager) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to delete staged object "+key)
	}
	return nil
}

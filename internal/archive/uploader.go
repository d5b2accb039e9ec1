package archive

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts = 5
	DefaultInitialWait = 1 * time.Second
)

// ObjectAPI is the part of the S3 client the uploader needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Config struct {
	Logger *slog.Logger
	Bucket string
	Region string
	// EndpointURL points at an S3 compatible store such as MinIO; path style addressing is used.
	EndpointURL     string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	Verify          bool

	MaxAttempts int
	InitialWait time.Duration
	Clock       clockwork.Clock

	// Client overrides the S3 client built from the credentials.
	Client ObjectAPI
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Region == "" {
		return errors.New("region is required")
	}
	if c.Client == nil && (c.AccessKeyID == "" || c.SecretAccessKey == "") {
		return errors.New("credentials are required")
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialWait == 0 {
		c.InitialWait = DefaultInitialWait
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Uploader archives report files in an S3 bucket.
type Uploader struct {
	cfg    *Config
	client ObjectAPI
	log    *slog.Logger
}

func New(ctx context.Context, cfg *Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(creds),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		if cfg.EndpointURL != "" {
			endpoint := cfg.EndpointURL
			client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				o.BaseEndpoint = &endpoint
				o.UsePathStyle = true
			})
			cfg.Logger.Info("using custom S3 endpoint", "endpoint", endpoint)
		} else {
			client = s3.NewFromConfig(awsCfg)
		}
	}

	return &Uploader{cfg: cfg, client: client, log: cfg.Logger}, nil
}

// Key is the object key used for a file when no key is given: prefix, upload date, file name.
func (u *Uploader) Key(filePath string) string {
	date := u.cfg.Clock.Now().UTC().Format("2006-01-02")
	return path.Join(u.cfg.KeyPrefix, date, filepath.Base(filePath))
}

// Upload stores the file under key, or under Key(filePath) when key is empty, and returns
// the object URL.
func (u *Uploader) Upload(ctx context.Context, filePath, key string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	if key == "" {
		key = u.Key(filePath)
	}
	contentMD5 := computeMD5(data)
	u.log.Debug("uploading file", "path", filePath, "key", key, "bytes", len(data))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = u.cfg.InitialWait
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:     aws.String(u.cfg.Bucket),
			Key:        aws.String(key),
			Body:       bytes.NewReader(data),
			ContentMD5: aws.String(contentMD5),
		})
		if err != nil {
			u.log.Warn("S3 upload failed", "key", key, "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(u.cfg.MaxAttempts)))
	if err != nil {
		return "", fmt.Errorf("S3 upload failed after %d attempts: %w", attempt, err)
	}

	if u.cfg.Verify {
		if err := u.verify(ctx, key, int64(len(data))); err != nil {
			return "", err
		}
	}

	url := u.URL(key)
	u.log.Info("uploaded file", "path", filePath, "url", url)
	return url, nil
}

func (u *Uploader) verify(ctx context.Context, key string, size int64) error {
	res, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(u.cfg.Bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("failed to verify uploaded file: %w", err)
	}
	if res.ContentLength == nil || *res.ContentLength != size {
		var got int64
		if res.ContentLength != nil {
			got = *res.ContentLength
		}
		return fmt.Errorf("size mismatch: expected %d bytes, got %d bytes", size, got)
	}
	return nil
}

func (u *Uploader) URL(key string) string {
	if u.cfg.EndpointURL != "" {
		return fmt.Sprintf("%s/%s/%s", u.cfg.EndpointURL, u.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

func computeMD5(data []byte) string {
	hash := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(hash[:])
}

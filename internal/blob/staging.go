package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	appconfig "paperwing/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Shard is one output artifact produced by a batch extraction operation
type Shard struct {
	Key  string
	Data []byte
}

// StagingArea stages document bytes for asynchronous extraction and collects
// the result shards. It is a pass-through to object storage; all durable
// processing state lives in the job store.
type StagingArea interface {
	// Store the original upload, returning its storage path
	UploadOriginal(ctx context.Context, documentID, filename string, body io.Reader) (string, error)

	// Fetch a stored object by path
	Download(ctx context.Context, storagePath string) ([]byte, error)

	// Stage a document's bytes for a batch operation, returning the input prefix
	Stage(ctx context.Context, jobKey string, data []byte, filename string) (string, error)

	// OutputPrefix returns the location batch results will be written under
	OutputPrefix(jobKey string) string

	// OutputReady reports whether any output artifact exists yet
	OutputReady(ctx context.Context, jobKey string) (bool, error)

	// Collect downloads every output artifact for the job, in key order
	Collect(ctx context.Context, jobKey string) ([]Shard, error)

	// Cleanup deletes the job's staged input and output artifacts, best-effort
	Cleanup(ctx context.Context, jobKey string)

	// TestConnection verifies bucket access
	TestConnection(ctx context.Context) error
}

type stagingArea struct {
	s3     *s3.Client
	bucket string
	region string
	prefix string
}

// New creates an S3-backed staging area
func New(cfg appconfig.StorageConfig) (StagingArea, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	prefix := cfg.StagingPrefix
	if prefix == "" {
		prefix = "staging"
	}

	return &stagingArea{
		s3:     s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *stagingArea) inputPrefix(jobKey string) string {
	return fmt.Sprintf("%s/%s/input/", s.prefix, jobKey)
}

func (s *stagingArea) OutputPrefix(jobKey string) string {
	return fmt.Sprintf("%s/%s/output/", s.prefix, jobKey)
}

// UploadOriginal stores the original upload under uploads/{documentID}
func (s *stagingArea) UploadOriginal(ctx context.Context, documentID, filename string, body io.Reader) (string, error) {
	key := fmt.Sprintf("uploads/%s/%s", documentID, filename)

	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload original document")
		return "", err
	}

	log.Debug().Str("key", key).Msg("Uploaded original document")
	return key, nil
}

// Download fetches a stored object by path
func (s *stagingArea) Download(ctx context.Context, storagePath string) ([]byte, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil {
		log.Error().Err(err).Str("key", storagePath).Msg("Failed to download object")
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Stage writes the document bytes under the job's input prefix
func (s *stagingArea) Stage(ctx context.Context, jobKey string, data []byte, filename string) (string, error) {
	inputPrefix := s.inputPrefix(jobKey)
	key := inputPrefix + path.Base(filename)

	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to stage document for batch extraction")
		return "", err
	}

	log.Debug().Str("key", key).Int("size", len(data)).Msg("Staged document for batch extraction")
	return inputPrefix, nil
}

// OutputReady is a cheap existence check used for polling without a download
func (s *stagingArea) OutputReady(ctx context.Context, jobKey string) (bool, error) {
	out, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.OutputPrefix(jobKey)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}

	return len(out.Contents) > 0, nil
}

// Collect lists and downloads every output artifact under the job's output
// prefix. Shards come back in lexical key order, which is the order the
// extraction service numbers them in.
func (s *stagingArea) Collect(ctx context.Context, jobKey string) ([]Shard, error) {
	outputPrefix := s.OutputPrefix(jobKey)

	keys, err := s.listKeys(ctx, outputPrefix)
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	shards := make([]Shard, 0, len(keys))
	for _, key := range keys {
		data, err := s.Download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("downloading shard %s: %w", key, err)
		}
		shards = append(shards, Shard{Key: key, Data: data})
	}

	log.Debug().Str("jobKey", jobKey).Int("shards", len(shards)).Msg("Collected batch output shards")
	return shards, nil
}

// Cleanup deletes staged input and output artifacts. Failures are logged and
// never escalated; leftover staging objects must not affect job status.
func (s *stagingArea) Cleanup(ctx context.Context, jobKey string) {
	for _, prefix := range []string{s.inputPrefix(jobKey), s.OutputPrefix(jobKey)} {
		keys, err := s.listKeys(ctx, prefix)
		if err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("Staging cleanup listing failed")
			continue
		}

		for _, key := range keys {
			_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Staging cleanup delete failed")
			}
		}
	}

	log.Debug().Str("jobKey", jobKey).Msg("Cleaned up staging artifacts")
}

func (s *stagingArea) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}

	return keys, nil
}

// TestConnection verifies bucket access
func (s *stagingArea) TestConnection(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Msg("S3 connection test failed")
	}

	return err
}

package s3

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/destination"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/goccy/go-json"
)

const Type destination.Type = "s3"

// S3 destination buffers JSON lines in a temp file and uploads it on close
// to s3://bucket/prefix/namespace/stream/<ulid>.jsonl
type S3 struct {
	closed    bool
	objectKey string
	config    *Config
	file      *os.File
	buffer    *bufio.Writer
	stream    types.StreamInterface
	records   atomic.Int64
	s3Client  *s3.Client
}

func (s *S3) GetConfigRef() destination.Config {
	s.config = &Config{}
	return s.config
}

func (s *S3) Spec() any {
	return Config{}
}

func (s *S3) Type() string {
	return string(Type)
}

func (s *S3) client(ctx context.Context) (*s3.Client, error) {
	if s.s3Client != nil {
		return s.s3Client, nil
	}

	options := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.config.Region)}
	if s.config.AccessKey != "" && s.config.SecretKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.config.AccessKey, s.config.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %s", err)
	}

	s.s3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
		}
		o.UsePathStyle = s.config.PathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return s.s3Client, nil
}

func (s *S3) objectPath(parts ...string) string {
	return path.Join(append([]string{strings.Trim(s.config.Prefix, "/")}, parts...)...)
}

func (s *S3) Setup(stream types.StreamInterface, _ *destination.Options) error {
	if _, err := s.client(context.Background()); err != nil {
		return err
	}

	fileName := fmt.Sprintf("%s.%s", utils.ULID(), constants.LocalFileExt)
	s.objectKey = s.objectPath(stream.Namespace(), stream.Name(), fileName)

	file, err := os.CreateTemp("", "resttap-*."+constants.LocalFileExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %s", err)
	}
	s.file = file
	s.buffer = bufio.NewWriter(file)
	s.stream = stream
	return nil
}

// Check writes and deletes a small object under the configured prefix
func (s *S3) Check(ctx context.Context) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	testKey := s.objectPath("resttap_test", utils.ULID()+".txt")
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(testKey),
		Body:   strings.NewReader("resttap write check"),
	})
	if err != nil {
		return fmt.Errorf("failed to write test file to S3: %s", err)
	}
	logger.Debugf("Successfully wrote test file to s3://%s/%s", s.config.Bucket, testKey)

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete test file from S3: %s", err)
	}
	return nil
}

func (s *S3) Write(ctx context.Context, records []types.RecordEnvelope) error {
	if s.closed {
		return fmt.Errorf("writer for stream %s already closed", s.stream.ID())
	}
	for _, envelope := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(envelope.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %s", err)
		}
		if _, err := s.buffer.Write(append(data, '\n')); err != nil {
			return err
		}
		s.records.Add(1)
	}
	return nil
}

func (s *S3) Close(ctx context.Context) error {
	if s.closed || s.file == nil {
		return nil
	}
	s.closed = true
	defer os.Remove(s.file.Name())

	err := utils.ErrExecSequential(
		utils.ErrExecFormat("failed to flush buffer: %s", s.buffer.Flush),
		utils.ErrExecFormat("failed to close file: %s", s.file.Close),
	)
	if err != nil {
		return fmt.Errorf("failed to stop writer after adding %d records: %s", s.records.Load(), err)
	}

	if s.records.Load() == 0 {
		logger.Debugf("No records written for stream %s, skipping S3 upload", s.stream.ID())
		return nil
	}

	file, err := os.Open(s.file.Name())
	if err != nil {
		return fmt.Errorf("failed to open temp file for upload: %s", err)
	}
	defer file.Close()

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.objectKey),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %s", err)
	}

	logger.Infof("Successfully uploaded file to s3://%s/%s with %d records", s.config.Bucket, s.objectKey, s.records.Load())
	return nil
}

func init() {
	destination.RegisteredWriters[Type] = func() destination.Writer {
		return new(S3)
	}
}

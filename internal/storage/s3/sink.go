package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/internal/storage"
	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// SinkConfig configures the S3 partition sink
type SinkConfig struct {
	Region            string `json:"region"`
	Bucket            string `json:"bucket"`
	Prefix            string `json:"prefix"`
	Endpoint          string `json:"endpoint,omitempty"`
	ForcePathStyle    bool   `json:"force_path_style"`
	Compression       string `json:"compression"`
	PartitionBySensor bool   `json:"partition_by_sensor"`
	Overwrite         bool   `json:"overwrite"`
	TimeZone          string `json:"timezone"`
}

// Sink writes block-compressed CSV partitions as S3 objects under a bucket
// prefix, one object per partition, with the same conflict semantics as the
// file sink.
type Sink struct {
	config   *SinkConfig
	s3Client *s3.S3
	uploader *s3manager.Uploader
	loc      *time.Location
	logger   *logrus.Logger
}

// NewSink creates the S3 sink and verifies the bucket is reachable
func NewSink(config *SinkConfig, logger *logrus.Logger) (*Sink, error) {
	if config == nil || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "s3 sink requires a bucket")
	}
	if logger == nil {
		logger = logrus.New()
	}

	loc := time.UTC
	if config.TimeZone != "" {
		parsed, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage,
				errors.CodeWriteFailed, fmt.Sprintf("invalid output timezone %q", config.TimeZone))
		}
		loc = parsed
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(config.ForcePathStyle)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeConnectionFailed, "failed to create AWS session")
	}

	sink := &Sink{
		config:   config,
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		loc:      loc,
		logger:   logger,
	}

	if _, err := sink.s3Client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(config.Bucket),
	}); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeConnectionFailed, fmt.Sprintf("cannot access bucket %q", config.Bucket))
	}

	logger.WithFields(logrus.Fields{
		"bucket": config.Bucket,
		"region": config.Region,
	}).Info("Connected to S3 sink")

	return sink, nil
}

// Write commits the readings, one object per partition
func (s *Sink) Write(ctx context.Context, readings []models.ProcessedReading) ([]string, error) {
	partitions := storage.Split(readings, s.config.PartitionBySensor)

	ext, err := storage.CodecExt(s.config.Compression)
	if err != nil {
		return nil, err
	}

	if !s.config.Overwrite {
		for _, p := range partitions {
			exists, err := s.objectExists(ctx, s.objectKey(p, ext))
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, errors.NewPartitionConflictError(p.Name())
			}
		}
	}

	written := make([]string, 0, len(partitions))
	for _, p := range partitions {
		if err := s.writePartition(ctx, p, ext); err != nil {
			return written, err
		}
		written = append(written, p.Name())
	}

	s.logger.WithFields(logrus.Fields{
		"partitions": len(written),
		"records":    len(readings),
		"bucket":     s.config.Bucket,
	}).Info("Partitions committed to S3")

	return written, nil
}

func (s *Sink) objectKey(p storage.Partition, ext string) string {
	return path.Join(s.config.Prefix, p.Name(), "readings.csv"+ext)
}

func (s *Sink) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
		return false, nil
	}
	return false, errors.WrapError(err, errors.ErrorTypeStorage,
		errors.CodeConnectionFailed, fmt.Sprintf("cannot check object %q", key))
}

func (s *Sink) writePartition(ctx context.Context, p storage.Partition, ext string) error {
	var buf bytes.Buffer
	compressor, _, err := storage.Compressor(s.config.Compression, &buf)
	if err != nil {
		return err
	}
	if err := storage.EncodeCSV(compressor, p.Rows, s.loc); err != nil {
		compressor.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot encode partition %s", p.Name()))
	}
	if err := compressor.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot finish compression for partition %s", p.Name()))
	}

	key := s.objectKey(p, ext)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot upload partition object %q", key))
	}

	return nil
}

// Close is a no-op; the AWS session holds no resources needing release
func (s *Sink) Close() error { return nil }

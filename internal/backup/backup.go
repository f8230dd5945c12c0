// Package backup uploads periodic snapshots of the database file to S3.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kuroedu/kuro-backend/internal/config"
)

// Service snapshots the local database file into an S3 bucket.
type Service struct {
	cfg    config.AWSConfig
	dbPath string
	logger *log.Logger
}

// New creates a backup service for the given database file.
func New(cfg config.AWSConfig, dbPath string, logger *log.Logger) *Service {
	return &Service{cfg: cfg, dbPath: dbPath, logger: logger}
}

// Run uploads the database file under a timestamped key. When credentials
// are missing the backup is skipped with a warning, not an error.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Configured() {
		s.logger.Printf("backup: S3 credentials missing; skipping automated backup")
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return fmt.Errorf("backup: load aws config: %w", err)
	}

	file, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("backup: open database file: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("clients-backups/clients-%s.sqlite", time.Now().UTC().Format(time.RFC3339))
	client := s3.NewFromConfig(awsCfg)
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.BackupBucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return fmt.Errorf("backup: upload %s: %w", key, err)
	}

	s.logger.Printf("backup: uploaded %s", key)
	return nil
}

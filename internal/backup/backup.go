// Package backup periodically exports the full content database as a
// JSON snapshot to an S3-compatible object store.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

// ErrDisabled is returned by New when the object-store credentials are
// not configured. Backup is strictly optional.
var ErrDisabled = errors.New("backup not configured")

// uploader is the slice of the S3 client the exporter needs.
type uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type announcementSource interface {
	All(ctx context.Context) ([]models.Announcement, error)
}

type blogPostSource interface {
	All(ctx context.Context) ([]models.BlogPost, error)
}

// Config carries the object-store settings. Endpoint supports
// S3-compatible stores such as Cloudflare R2.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Interval  time.Duration
}

// Exporter snapshots both content tables into a single JSON object per
// run, keyed by export time.
type Exporter struct {
	client        uploader
	bucket        string
	interval      time.Duration
	announcements announcementSource
	posts         blogPostSource
	now           func() time.Time
}

// snapshot is the exported document. Read and favorite flags are
// included so a restore keeps user state.
type snapshot struct {
	ExportedAt    time.Time             `json:"exported_at"`
	Announcements []models.Announcement `json:"announcements"`
	BlogPosts     []models.BlogPost     `json:"blog_posts"`
}

// New builds an Exporter against the configured object store. Returns
// ErrDisabled when credentials are missing so the caller can skip
// backups without special-casing config.
func New(ctx context.Context, cfg Config, announcements announcementSource, posts blogPostSource) (*Exporter, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, ErrDisabled
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return newWithClient(client, cfg, announcements, posts), nil
}

func newWithClient(client uploader, cfg Config, announcements announcementSource, posts blogPostSource) *Exporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Exporter{
		client:        client,
		bucket:        cfg.Bucket,
		interval:      interval,
		announcements: announcements,
		posts:         posts,
		now:           time.Now,
	}
}

// Run exports on the configured interval until ctx is cancelled. Export
// failures are logged and retried on the next tick.
func (e *Exporter) Run(ctx context.Context) {
	log := logger.Get()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key, err := e.Export(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("Snapshot export failed")
				continue
			}
			log.Info().Str("key", key).Msg("Snapshot exported")
		}
	}
}

// Export uploads one snapshot of both tables and returns the object key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	ann, err := e.announcements.All(ctx)
	if err != nil {
		return "", fmt.Errorf("read announcements: %w", err)
	}
	posts, err := e.posts.All(ctx)
	if err != nil {
		return "", fmt.Errorf("read blog posts: %w", err)
	}

	now := e.now().UTC()
	doc, err := json.Marshal(snapshot{
		ExportedAt:    now,
		Announcements: ann,
		BlogPosts:     posts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/feedsync-%s.json",
		now.Format("2006/01/02"), now.Format("150405"))
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

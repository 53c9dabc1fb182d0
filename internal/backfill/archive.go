// Package backfill reconstructs historical per-minute features from the
// exchange's public S3 trade archive. It is an offline companion to the
// live pipeline and shares its store.
package backfill

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hynous/hynous-data/internal/config"
	"github.com/hynous/hynous-data/internal/utils"
)

// ArchiveTrade is one line of an hourly archive object. The exchange
// serialises numerics as strings.
type ArchiveTrade struct {
	Coin   string `json:"coin"`
	Side   string `json:"side"`
	Px     string `json:"px"`
	Sz     string `json:"sz"`
	TimeMS int64  `json:"time"`
}

// Archive reads gzipped JSONL trade dumps laid out as
// <prefix>/<coin>/<YYYYMMDD>/<HH>.jsonl.gz.
type Archive struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewArchive builds the S3 client. Without credentials the archive is
// read anonymously; Endpoint switches to path-style addressing for
// S3-compatible stores.
func NewArchive(ctx context.Context, cfg config.BackfillConfig, log zerolog.Logger) (*Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	} else {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}

	return &Archive{
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 1
		}),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With().Str("component", "backfill_archive").Logger(),
	}, nil
}

// ListHours returns the hourly object keys available for a coin on one
// day, in key order.
func (a *Archive) ListHours(ctx context.Context, coin string, day time.Time) ([]string, error) {
	prefix := a.objectPrefix(coin, day)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".jsonl.gz") {
				keys = append(keys, key)
			}
		}
	}

	return keys, nil
}

// FetchHour downloads and decodes one hourly object.
func (a *Archive) FetchHour(ctx context.Context, key string) ([]ArchiveTrade, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(nil)
	_, err := a.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	return decodeArchive(buf.Bytes())
}

func (a *Archive) objectPrefix(coin string, day time.Time) string {
	return fmt.Sprintf("%s/%s/%s/", a.prefix, coin, day.UTC().Format("20060102"))
}

func decodeArchive(raw []byte) ([]ArchiveTrade, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	var trades []ArchiveTrade
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var t ArchiveTrade
		if err := json.Unmarshal(line, &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive lines: %w", err)
	}

	return trades, nil
}

// Price returns the parsed trade price, 0 when malformed.
func (t ArchiveTrade) Price() float64 { return utils.ParseFloat(t.Px, 0) }

// Size returns the parsed trade size, 0 when malformed.
func (t ArchiveTrade) Size() float64 { return utils.ParseFloat(t.Sz, 0) }

package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/rkm/s2-parcels/internal/product"
)

// objectStore is the subset of the S3 API used by the fetcher.
type objectStore interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures access to the eodata object store.
type S3Options struct {
	Endpoint    string
	Region      string
	Bucket      string
	AccessKey   string
	SecretKey   string
	Concurrency int
}

// S3Fetcher copies unpacked products from object storage.
type S3Fetcher struct {
	client      objectStore
	bucket      string
	concurrency int
	progress    Progress
	logger      *slog.Logger
}

// NewS3Fetcher creates a fetcher for the S3 endpoint described by opts.
func NewS3Fetcher(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Fetcher, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	return newS3Fetcher(client, opts, logger), nil
}

func newS3Fetcher(client objectStore, opts S3Options, logger *slog.Logger) *S3Fetcher {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &S3Fetcher{
		client:      client,
		bucket:      opts.Bucket,
		concurrency: concurrency,
		logger:      logger,
	}
}

// WithProgress sets the progress callback.
func (f *S3Fetcher) WithProgress(progress Progress) *S3Fetcher {
	f.progress = progress
	return f
}

// Name returns the fetcher name.
func (f *S3Fetcher) Name() string {
	return "s3"
}

type object struct {
	key  string
	size int64
}

// Fetch copies every object below the product's S3 path into
// <databaseDir>/<filename>. Products that are already present are skipped.
func (f *S3Fetcher) Fetch(ctx context.Context, p product.Product, databaseDir string) (string, error) {
	dir := ProductDir(databaseDir, p)
	exists, err := Exists(databaseDir, p)
	if err != nil {
		return "", err
	}
	if exists {
		f.logger.DebugContext(ctx, "product already downloaded", slog.String("product", p.Filename))
		return dir, nil
	}

	prefix, err := f.prefix(p)
	if err != nil {
		return "", err
	}

	objects, total, err := f.list(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("%w: s3://%s/%s", ErrNoObjects, f.bucket, prefix)
	}

	tmp := dir + ".part"
	if err := os.RemoveAll(tmp); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", tmp, err)
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, obj := range objects {
		g.Go(func() error {
			target, err := safeJoin(tmp, filepath.FromSlash(strings.TrimPrefix(obj.key, prefix)))
			if err != nil {
				return err
			}
			n, err := f.get(gctx, obj.key, target)
			if err != nil {
				return err
			}
			if f.progress != nil {
				f.progress(p, written.Add(n), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to fetch %s: %w", p.Filename, err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", p.Filename, err)
	}

	f.logger.InfoContext(ctx, "product downloaded",
		slog.String("product", p.Filename),
		slog.Int("objects", len(objects)),
		slog.Int64("bytes", total),
	)
	return dir, nil
}

// prefix is the object key prefix of the product, derived from its S3 path
// (/<bucket>/<key>).
func (f *S3Fetcher) prefix(p product.Product) (string, error) {
	if p.S3Path == "" {
		return "", fmt.Errorf("product %s has no S3 path", p.Filename)
	}
	key := strings.TrimPrefix(p.S3Path, "/")
	key = strings.TrimPrefix(key, f.bucket+"/")
	return strings.TrimSuffix(key, "/") + "/", nil
}

func (f *S3Fetcher) list(ctx context.Context, prefix string) ([]object, int64, error) {
	var (
		objects []object
		total   int64
	)
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list s3://%s/%s: %w", f.bucket, prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			size := aws.ToInt64(o.Size)
			objects = append(objects, object{key: key, size: size})
			total += size
		}
	}
	return objects, total, nil
}

func (f *S3Fetcher) get(ctx context.Context, key, target string) (int64, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	file, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}
	n, err := io.Copy(file, out.Body)
	if err != nil {
		file.Close()
		return n, fmt.Errorf("failed to copy %s: %w", key, err)
	}
	return n, file.Close()
}

// Package targets resolves campaign target lists. A campaign references
// its streamer list either as a local file or as an object in
// DigitalOcean Spaces (spaces://bucket/key, or spaces://key against the
// configured default bucket); the supervisor materializes the list into
// a file the miners can read.
package targets

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const spacesScheme = "spaces://"

// Materializer turns a target reference into a local file path.
type Materializer struct {
	client *s3.Client
	bucket string
}

// NewMaterializer builds a materializer. With an empty key, Spaces
// references are rejected and only local files resolve. bucket is the
// default for references that omit one.
func NewMaterializer(spacesKey, spacesSecret, region, bucket string) *Materializer {
	if spacesKey == "" {
		return &Materializer{}
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	return &Materializer{client: s3.NewFromConfig(cfg), bucket: bucket}
}

// Materialize resolves source to a readable file under destDir for
// Spaces objects, or in place for local files. The list must contain at
// least one target.
func (m *Materializer) Materialize(ctx context.Context, source, destDir string) (string, error) {
	if strings.HasPrefix(source, spacesScheme) {
		return m.fetchSpaces(ctx, source, destDir)
	}
	return materializeLocal(source)
}

func materializeLocal(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open target list %s: %w", path, err)
	}
	defer f.Close()

	names, err := Parse(f)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("target list %s has no targets", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target list path %s: %w", path, err)
	}

	slog.Info("Target list ready",
		slog.String("type", "targets"),
		slog.String("file", abs),
		slog.Int("targets", len(names)))
	return abs, nil
}

func (m *Materializer) fetchSpaces(ctx context.Context, source, destDir string) (string, error) {
	if m.client == nil {
		return "", fmt.Errorf("target list %s requires Spaces credentials", source)
	}

	bucket, key, err := splitSpacesURL(source, m.bucket)
	if err != nil {
		return "", err
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch target list %s: %w", source, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read target list %s: %w", source, err)
	}

	names, err := Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("target list %s has no targets", source)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(key))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write target list %s: %w", dest, err)
	}

	slog.Info("Target list fetched",
		slog.String("type", "targets"),
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.String("file", dest),
		slog.Int("targets", len(names)))
	return dest, nil
}

func splitSpacesURL(source, defaultBucket string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(source, spacesScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok {
		bucket, key = "", rest
	}
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed spaces reference %q, want spaces://bucket/key", source)
	}
	return bucket, key, nil
}

// Parse reads one target per line. Blank lines and # comments are
// skipped.
func Parse(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return names, nil
}

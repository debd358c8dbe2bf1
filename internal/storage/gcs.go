package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket
type GCS struct {
	client *storage.Client
	bucket string
	log    logrus.FieldLogger
}

// NewGCS connects with explicit JSON credentials when given, else ADC
func NewGCS(ctx context.Context, bucket, credentialsJSON string, log logrus.FieldLogger) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("storage: GCS bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, log: log.WithField("module", "gcs")}, nil
}

// Put uploads data. The object is committed only when the writer closes cleanly.
func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	w := g.client.Bucket(g.bucket).Object(k).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", k, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", k, err)
	}
	g.log.WithFields(logrus.Fields{"bucket": g.bucket, "key": k, "bytes": len(data)}).Debug("object stored")
	return nil
}

// Get downloads an object
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(g.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", k, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = g.client.Bucket(g.bucket).Object(k).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}

func (g *GCS) Close() error { return g.client.Close() }

package txn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"
)

// GCSStore retrieves transactions from a Google Cloud Storage bucket, with an
// optional write-through cache directory so each blob is fetched at most once
// per machine. Object keys are "<Prefix><key>.bin".
type GCSStore struct {
	Bucket string
	Prefix string
	// CacheDir, when non-empty, is consulted before the bucket and
	// populated after a successful fetch.
	CacheDir string
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) Transaction(ctx context.Context, key string) ([]byte, error) {
	log := klog.FromContext(ctx)

	if s.CacheDir != "" {
		cached := filepath.Join(s.CacheDir, key+".bin")
		data, err := os.ReadFile(cached)
		if err == nil {
			log.V(2).Info("transaction cache hit", "key", key, "path", cached)
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading cached transaction %q: %w", key, err)
		}
	}

	objectKey := s.Prefix + key + ".bin"
	gcsURL := "gs://" + s.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading transaction from GCS", "key", key, "source", gcsURL)

	startedAt := time.Now()
	r, err := client.Bucket(s.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("key %q (%s): %w", key, gcsURL, ErrNotFound)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading from GCS %q: %w", gcsURL, err)
	}

	log.Info("downloaded transaction from GCS", "key", key, "source", gcsURL,
		"bytes", len(data), "duration", time.Since(startedAt))

	if s.CacheDir != "" {
		if err := s.writeCache(ctx, key, data); err != nil {
			// Cache population is best-effort; the caller still has the bytes
			log.Error(err, "caching transaction", "key", key)
		}
	}

	return data, nil
}

func (s *GCSStore) writeCache(ctx context.Context, key string, data []byte) error {
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	destinationPath := filepath.Join(s.CacheDir, key+".bin")

	tempFile, err := os.CreateTemp(s.CacheDir, "txn")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

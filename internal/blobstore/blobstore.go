// Package blobstore offloads oversized Welcome payloads to S3-compatible
// object storage so the delivery layer never has to push a multi-megabyte
// tree snapshot through a WebSocket frame. Each blob is sealed with
// XChaCha20-Poly1305 under a single-use key before it ever leaves the
// process; the key travels with the handshake message, not with the
// object, so a compromised bucket alone reveals nothing.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/FHMS-ITS/mls-explained/internal/crypto"
)

// Config holds the connection parameters for the backing bucket. Every
// field mirrors an S3_* environment variable callers are expected to
// source however their process does configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store puts and fetches encrypted Welcome blobs keyed by an opaque
// storage key. It never persists the symmetric key it uses to seal a
// blob — that key is returned to the caller on Put and must be supplied
// again on Get.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// Reference is everything a handshake message needs to carry so that a
// recipient can retrieve and open an offloaded Welcome later: the
// storage key locating the ciphertext, and the key/nonce that sealed it.
type Reference struct {
	StorageKey string
	Key        []byte
	Nonce      []byte
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: new client: %w", err)
	}

	s := &Store{client: client, bucket: cfg.Bucket, region: cfg.Region}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blobstore: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("blobstore: make bucket: %w", err)
	}
	return nil
}

// Put seals payload under a freshly generated key and uploads it under a
// new random storage key scoped to groupID.
func (s *Store) Put(ctx context.Context, groupID []byte, payload []byte) (Reference, error) {
	key, err := crypto.GenerateSymmetricKey()
	if err != nil {
		return Reference{}, fmt.Errorf("blobstore: put: %w", err)
	}
	nonce, err := crypto.GenerateNonce(crypto.XChaCha20NonceSize)
	if err != nil {
		return Reference{}, fmt.Errorf("blobstore: put: %w", err)
	}

	sealed, err := crypto.EncryptXChaCha20(key, payload, groupID)
	if err != nil {
		return Reference{}, fmt.Errorf("blobstore: put: seal: %w", err)
	}
	// EncryptXChaCha20 generates its own nonce internally; use the one it
	// actually used rather than the one generated above.
	nonce = sealed.Nonce

	storageKey := fmt.Sprintf("welcome/%x/%s", groupID, uuid.New().String())

	reader := bytes.NewReader(sealed.Ciphertext)
	_, err = s.client.PutObject(ctx, s.bucket, storageKey, reader, int64(len(sealed.Ciphertext)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Reference{}, fmt.Errorf("blobstore: put: upload: %w", err)
	}

	return Reference{StorageKey: storageKey, Key: key, Nonce: nonce}, nil
}

// Get downloads and opens the blob named by ref, matching it against
// groupID as the same associated data Put sealed it with.
func (s *Store) Get(ctx context.Context, groupID []byte, ref Reference) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, ref.StorageKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get: download: %w", err)
	}
	defer object.Close()

	ciphertext, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("blobstore: get: read: %w", err)
	}

	plaintext, err := crypto.DecryptXChaCha20(ref.Key, ciphertext, ref.Nonce, groupID)
	if err != nil {
		return nil, fmt.Errorf("blobstore: get: open: %w", err)
	}
	return plaintext, nil
}

// Delete removes a blob once every recipient has retrieved it, or once
// the handshake that offloaded it has been superseded.
func (s *Store) Delete(ctx context.Context, ref Reference) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref.StorageKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	return nil
}

// ExpiresIn is how long a delivery server should hold a pending blob
// reference before giving up on offline recipients and deleting it.
const ExpiresIn = 7 * 24 * time.Hour

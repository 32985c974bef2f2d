package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// ArtifactStore persists generated content under deterministic keys.
type ArtifactStore interface {
	// Put writes the object only if the key is free. created is false when the
	// key already held an object, which callers treat as success.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (created bool, err error)
	// Get returns nil, nil when the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// SignedURL never mutates state and may be recomputed on every request.
	SignedURL(key string, ttl time.Duration) (string, error)
}

var ErrBucketRequired = errors.New("artifact bucket name is required")

type ArtifactStoreConfig struct {
	Storage         ObjectStorageConfig
	Bucket          string
	SignerEmail     string
	SignerKey       []byte
	PublicBaseURL   string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MetadataTimeout time.Duration
}

// ArtifactStoreConfigFromEnv reads ARTIFACT_GCS_BUCKET_NAME and the signer settings.
func ArtifactStoreConfigFromEnv() (ArtifactStoreConfig, error) {
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return ArtifactStoreConfig{}, fmt.Errorf("resolve object storage config: %w", err)
	}
	cfg := ArtifactStoreConfig{
		Storage:       storageCfg,
		Bucket:        envutil.String("ARTIFACT_GCS_BUCKET_NAME", ""),
		SignerEmail:   envutil.String("GCS_SIGNER_EMAIL", ""),
		PublicBaseURL: envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""),
	}
	if cfg.Bucket == "" {
		return cfg, fmt.Errorf("ARTIFACT_GCS_BUCKET_NAME: %w", ErrBucketRequired)
	}
	if key := envutil.String("GCS_SIGNER_PRIVATE_KEY", ""); key != "" {
		// Keys pasted into env files usually carry escaped newlines.
		cfg.SignerKey = []byte(strings.ReplaceAll(key, `\n`, "\n"))
	}
	return cfg, nil
}

type artifactStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    ArtifactStoreConfig
	http   *http.Client
}

func NewArtifactStore(ctx context.Context, log *logger.Logger, cfg ArtifactStoreConfig) (ArtifactStore, error) {
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrBucketRequired
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 30 * time.Second
	}
	cfg.Storage.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/")
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	client, err := newStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "ArtifactStore")
	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"bucket", cfg.Bucket,
		"explicit_signer", cfg.SignerEmail != "",
	)
	return &artifactStore{
		log:    serviceLog,
		client: client,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.ReadTimeout},
	}, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		// The storage client only honors the emulator through the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (s *artifactStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.cfg.Bucket).Object(key)
}

func (s *artifactStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (bool, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return false, fmt.Errorf("object key is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	w := s.object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = strings.TrimSpace(contentType)
	if w.ContentType == "" {
		w.ContentType = ContentTypeForKey(key)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.log.Debug("object already stored", "key", key)
			return false, nil
		}
		return false, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return true, nil
}

func (s *artifactStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// The reader outlives this call, so cancel is attached to Close.
	ctx2, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	if s.cfg.Storage.IsEmulatorMode() {
		rc, err := s.emulatorGet(ctx2, s.emulatorMediaURL(key))
		if rc == nil {
			cancel()
			return nil, err
		}
		return &readCloserWithCancel{ReadCloser: rc, cancel: cancel}, nil
	}
	r, err := s.object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *artifactStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MetadataTimeout)
	defer cancel()
	if s.cfg.Storage.IsEmulatorMode() {
		rc, err := s.emulatorGet(ctx, s.emulatorMetaURL(key))
		if rc != nil {
			_ = rc.Close()
		}
		return rc != nil, err
	}
	if _, err := s.object(key).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return true, nil
}

func (s *artifactStore) SignedURL(key string, ttl time.Duration) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if s.cfg.Storage.IsEmulatorMode() {
		// The emulator does not verify signatures; serve the media URL directly.
		base := s.cfg.PublicBaseURL
		if base == "" {
			base = s.cfg.Storage.EmulatorHost
		}
		return mediaURL(base, s.cfg.Bucket, key), nil
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	}
	if s.cfg.SignerEmail != "" {
		opts.GoogleAccessID = s.cfg.SignerEmail
	}
	if len(s.cfg.SignerKey) > 0 {
		opts.PrivateKey = s.cfg.SignerKey
	}
	u, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("sign url for %q: %w", key, err)
	}
	return u, nil
}

func (s *artifactStore) emulatorMediaURL(key string) string {
	return mediaURL(s.cfg.Storage.EmulatorHost, s.cfg.Bucket, key)
}

func (s *artifactStore) emulatorMetaURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s", s.cfg.Storage.EmulatorHost, url.PathEscape(s.cfg.Bucket), url.PathEscape(key))
}

// emulatorGet returns nil, nil on 404.
func (s *artifactStore) emulatorGet(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating emulator request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed emulator request: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("emulator request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func mediaURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", strings.TrimRight(base, "/"), url.PathEscape(bucket), url.PathEscape(key))
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// ContentTypeForKey infers a MIME type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".mp4"):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// ExtensionForContentType is the inverse of ContentTypeForKey for the types
// a generation provider returns; unknown types map to "".
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}

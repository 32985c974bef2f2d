package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/yungbote/atelier-backend/internal/platform/gcp"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		cfg  gcp.ObjectStorageConfig
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{
			name: "invalid mode",
			cfg:  gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageMode("bad-mode")},
			err:  &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Mode: "bad-mode"},
			want: StorageProviderBootstrapErrorInvalidMode,
		},
		{
			name: "missing emulator host",
			cfg:  gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator},
			err:  fmt.Errorf("resolve: %w", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}),
			want: StorageProviderBootstrapErrorMissingEmulatorHost,
		},
		{
			name: "invalid emulator host",
			cfg:  gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator, EmulatorHost: "fake-gcs:4443"},
			err:  &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost, EmulatorHost: "fake-gcs:4443"},
			want: StorageProviderBootstrapErrorInvalidEmulatorHost,
		},
		{
			name: "missing bucket",
			cfg:  gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS},
			err:  fmt.Errorf("ARTIFACT_GCS_BUCKET_NAME: %w", gcp.ErrBucketRequired),
			want: StorageProviderBootstrapErrorMissingBucket,
		},
		{
			name: "connect failed",
			cfg:  gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS},
			err:  errors.New("dial tcp: connection refused"),
			want: StorageProviderBootstrapErrorConnectFailed,
		},
	}
	for _, tc := range cases {
		err := classifyStorageProviderBootstrapError(tc.cfg, tc.err)
		var got *StorageProviderBootstrapError
		if !errors.As(err, &got) {
			t.Fatalf("%s: expected StorageProviderBootstrapError, got=%T", tc.name, err)
		}
		if got.Code != tc.want {
			t.Fatalf("%s: code want=%q got=%q", tc.name, tc.want, got.Code)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: cause must stay reachable", tc.name)
		}
	}
}

type stubArtifactStore struct{}

func (stubArtifactStore) Put(context.Context, string, io.Reader, string) (bool, error) {
	return true, nil
}
func (stubArtifactStore) Get(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (stubArtifactStore) Exists(context.Context, string) (bool, error)      { return false, nil }
func (stubArtifactStore) SignedURL(string, time.Duration) (string, error)   { return "", nil }

func TestResolveArtifactStore(t *testing.T) {
	orig := newArtifactStore
	t.Cleanup(func() { newArtifactStore = orig })

	cfg := gcp.ArtifactStoreConfig{
		Storage: gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS},
		Bucket:  "artifacts",
	}
	calls := 0
	newArtifactStore = func(_ context.Context, _ *logger.Logger, got gcp.ArtifactStoreConfig) (gcp.ArtifactStore, error) {
		calls++
		if got.Bucket != "artifacts" {
			t.Fatalf("bucket not passed through: %+v", got)
		}
		return stubArtifactStore{}, nil
	}
	store, err := resolveArtifactStore(context.Background(), logger.NewNop(), cfg, nil)
	if err != nil || store == nil || calls != 1 {
		t.Fatalf("resolve: store=%v err=%v calls=%d", store, err, calls)
	}

	if _, err := resolveArtifactStore(context.Background(), logger.NewNop(), cfg, gcp.ErrBucketRequired); storageProviderBootstrapErrorCode(err) != StorageProviderBootstrapErrorMissingBucket {
		t.Fatalf("config error: got %v", err)
	}
	if calls != 1 {
		t.Fatalf("store must not be built when config is invalid")
	}

	newArtifactStore = func(context.Context, *logger.Logger, gcp.ArtifactStoreConfig) (gcp.ArtifactStore, error) {
		return nil, errors.New("oauth2: cannot fetch token")
	}
	if _, err := resolveArtifactStore(context.Background(), logger.NewNop(), cfg, nil); storageProviderBootstrapErrorCode(err) != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("connect failure: got %v", err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/atelier-backend/internal/platform/gcp"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

var newArtifactStore = gcp.NewArtifactStore

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveArtifactStore builds the artifact store from env and classifies
// bootstrap failures so operators see which setting is wrong.
func resolveArtifactStore(ctx context.Context, log *logger.Logger, cfg gcp.ArtifactStoreConfig, cfgErr error) (gcp.ArtifactStore, error) {
	if cfgErr != nil {
		classified := classifyStorageProviderBootstrapError(cfg.Storage, cfgErr)
		log.Error(
			"Object storage provider selection failed",
			"mode", cfg.Storage.Mode,
			"emulator_host", cfg.Storage.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info(
		"Selecting object storage provider",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"bucket", cfg.Bucket,
	)
	store, err := newArtifactStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(cfg.Storage, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", cfg.Storage.Mode,
			"mode_source", cfg.Storage.ModeSource(),
			"emulator_host", cfg.Storage.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	out := &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.ObjectStorageConfigError
	switch {
	case errors.As(err, &cfgErr):
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			out.Code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			out.Code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			out.Code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
	case errors.Is(err, gcp.ErrBucketRequired):
		out.Code = StorageProviderBootstrapErrorMissingBucket
	}
	return out
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}

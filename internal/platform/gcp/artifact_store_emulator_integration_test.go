package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

func TestArtifactStoreEmulatorPutOnce(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("ATELIER_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set ATELIER_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}

	emulatorHost := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	if emulatorHost == "" {
		emulatorHost = "http://127.0.0.1:4443"
	}
	emulatorHost = strings.TrimRight(emulatorHost, "/")
	if !isEmulatorReachable(t, emulatorHost) {
		t.Skipf("storage emulator not reachable at %s", emulatorHost)
	}

	suffix := time.Now().UnixNano()
	bucketName := fmt.Sprintf("atelier-it-artifacts-%d", suffix)
	createBucketIfMissing(t, emulatorHost, bucketName)
	t.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	ctx := context.Background()
	store, err := NewArtifactStore(ctx, log, ArtifactStoreConfig{
		Storage: ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: emulatorHost},
		Bucket:  bucketName,
	})
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	key := fmt.Sprintf("generations/it_%d/artifact.png", suffix)
	created, err := store.Put(ctx, key, strings.NewReader("first"), "image/png")
	if err != nil || !created {
		t.Fatalf("first Put: created=%v err=%v", created, err)
	}
	created, err = store.Put(ctx, key, strings.NewReader("second"), "image/png")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if created {
		t.Fatalf("second Put must not overwrite an existing object")
	}

	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	rc, err := store.Get(ctx, key)
	if err != nil || rc == nil {
		t.Fatalf("Get: rc=%v err=%v", rc, err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "first" {
		t.Fatalf("object body: want=%q got=%q", "first", string(body))
	}
}

func isEmulatorReachable(t *testing.T, emulatorHost string) bool {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(emulatorHost + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucketIfMissing(t *testing.T, emulatorHost string, bucket string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": bucket})
	if err != nil {
		t.Fatalf("json.Marshal(bucket): %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodPost, emulatorHost+"/storage/v1/b?project=local-dev", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("http.NewRequest(create bucket): %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
}

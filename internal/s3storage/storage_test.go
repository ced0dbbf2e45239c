package s3storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitScan/internal/config"
)

func TestRefRoundTrip(t *testing.T) {
	key := ObjectKey("user 1", "scan_0193")
	require.Equal(t, "scans/user%201/scan_0193.raw", key)

	bucket, got, err := ParseRef(Ref("scan-images", key))
	require.NoError(t, err)
	require.Equal(t, "scan-images", bucket)
	require.Equal(t, key, got)
}

func TestParseRefRejectsGarbage(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/a", "s3://", "s3://bucket", "s3:///key"} {
		_, _, err := ParseRef(ref)
		require.Error(t, err, ref)
	}
}

func TestPresignImageIsOffline(t *testing.T) {
	// Presigning is computed locally, so no MinIO server is needed.
	store, err := New(&config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minioadmin",
		S3SecretKey: "minioadmin",
		S3Region:    "us-east-1",
		ImageBucket: "scan-images",
	})
	require.NoError(t, err)

	u, err := store.PresignImage(context.Background(), Ref("scan-images", ObjectKey("u1", "s1")), time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "http://localhost:9000/scan-images/scans/u1/s1.raw?"))
	require.Contains(t, u, "X-Amz-Signature=")

	_, err = store.PresignImage(context.Background(), "nope", time.Minute)
	require.Error(t, err)
}

package objectclient

import (
	"context"
	"io"
	"strings"
)

// ObjectClient defines interactions with S3 or any object storage. Abstract
// so AWS can be swapped for MinIO, GCP, or an in-memory fake in tests.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// ParseStorageURL extracts the bucket and key from a virtual-hosted-style S3
// URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf.
func ParseStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 1 {
		bucket = parts[0]
	}
	return bucket, key
}

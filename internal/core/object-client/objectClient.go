package objectclient

import (
	"fmt"
	"strings"
)

// ObjectURL builds a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/images/ab12.png
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, strings.TrimPrefix(key, "/"))
}

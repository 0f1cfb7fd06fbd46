package config

import "strings"

// Storage drivers accepted in STORAGE_DRIVER.
const (
    StorageLocal = "local"
    StorageS3    = "s3"
)

// StorageConfig selects where uploaded image files live.  The local driver
// writes under Dir and serves files from PublicPrefix; the S3 driver uploads
// to Bucket and builds URLs from PublicBaseURL.
type StorageConfig struct {
    Driver            string
    Dir               string
    PublicPrefix      string
    ThumbnailsEnabled bool

    S3Bucket        string
    S3Region        string
    S3Endpoint      string
    S3PublicBaseURL string
}

func LoadStorageConfig() StorageConfig {
    cfg := StorageConfig{
        Driver:            strings.ToLower(envStr("STORAGE_DRIVER", StorageLocal)),
        Dir:               envStr("UPLOAD_DIR", "uploads"),
        PublicPrefix:      "/" + strings.Trim(envStr("PUBLIC_PREFIX", "/uploads"), "/"),
        ThumbnailsEnabled: envBool("THUMBNAILS_ENABLED", true),
        S3Bucket:          envStr("S3_BUCKET", ""),
        S3Region:          envStr("S3_REGION", "us-east-1"),
        S3Endpoint:        envStr("S3_ENDPOINT", ""),
        S3PublicBaseURL:   strings.TrimRight(envStr("S3_PUBLIC_BASE_URL", ""), "/"),
    }
    if cfg.Driver == StorageS3 {
        cfg.S3Bucket = must("S3_BUCKET")
    }
    return cfg
}

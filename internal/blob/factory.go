package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Options selects and configures a blob backend.
type Options struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// OptionsFromEnv reads the blob settings from the environment.
//
//	ALMAZARA_BLOB_DRIVER: fs|s3|memory (default fs)
//	ALMAZARA_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	ALMAZARA_BLOB_S3_BUCKET, ALMAZARA_BLOB_S3_REGION, ALMAZARA_BLOB_S3_ENDPOINT,
//	ALMAZARA_BLOB_S3_PATH_STYLE: S3 or MinIO settings
func OptionsFromEnv() Options {
	return Options{
		Driver: Driver(strings.ToLower(os.Getenv("ALMAZARA_BLOB_DRIVER"))),
		FSRoot: os.Getenv("ALMAZARA_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:          os.Getenv("ALMAZARA_BLOB_S3_BUCKET"),
			Region:          os.Getenv("ALMAZARA_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("ALMAZARA_BLOB_S3_ENDPOINT"),
			PathStyle:       strings.EqualFold(os.Getenv("ALMAZARA_BLOB_S3_PATH_STYLE"), "true"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		},
	}
}

// Open returns the Store selected by opts. An empty driver selects the filesystem.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(opts.FSRoot)
	case DriverS3:
		if opts.S3.Bucket == "" {
			return nil, fmt.Errorf("ALMAZARA_BLOB_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", opts.Driver)
	}
}

package blob

import (
	"context"

	infraS3 "featurecore/internal/infra/blob/s3"
)

// S3Config configures the S3 backend. The bucket comes from the location.
type S3Config = infraS3.Config

// NewS3 opens the bucket named in cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store served by an in-process fake, for
// registry tests outside the s3 package.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

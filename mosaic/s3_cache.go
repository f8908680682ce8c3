package mosaic

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Cache stores artifacts in an S3 bucket for deployments where the
// cache is shared between workers.
type S3Cache struct {
	bucket     string
	prefix     string
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func NewS3Cache(bucket, prefix string) (*S3Cache, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}

	downloader := s3manager.NewDownloader(
		sess,
		func(d *s3manager.Downloader) {
			// See https://levyeran.medium.com/high-memory-allocations-and-gc-cycles-while-downloading-large-s3-objects-using-the-aws-sdk-for-go-e776a136c5d0
			d.BufferProvider = s3manager.NewPooledBufferedWriterReadFromProvider(15 * 1024 * 1024)
		},
	)

	return &S3Cache{
		bucket:     bucket,
		prefix:     prefix,
		downloader: downloader,
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

func (c *S3Cache) objectKey(key string) string {
	return path.Join(c.prefix, key[:2], key+artifactExt)
}

func (c *S3Cache) Get(ctx context.Context, key string) (*Raster, bool, error) {
	buf := &aws.WriteAtBuffer{}
	_, err := c.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, false, nil
		}
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}

	r, err := DecodeRaster(buf.Bytes())
	if err != nil {
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return r, true, nil
}

func (c *S3Cache) Put(ctx context.Context, key string, r *Raster) error {
	data, err := EncodeRaster(r)
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}

	_, err = c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return &CacheError{Op: "put", Key: key, Err: err}
	}
	return nil
}

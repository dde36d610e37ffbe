package filestorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/types"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3FileStorage(ctx context.Context, cfg *config.Config) (*S3FileStorage, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("s3 config is not set")
	}

	region := cfg.S3.Region
	if region == "" {
		region = "auto"
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(
		ctx,
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.EndpointUrl != "" {
			o.BaseEndpoint = &cfg.S3.EndpointUrl
		}
	})

	return &S3FileStorage{
		client: s3Client,
		cfg:    cfg.S3,
	}, nil
}

func (u *S3FileStorage) Save(ctx context.Context, file FileInfo) (string, error) {
	handle, err := file.Handle()
	if err != nil {
		return "", err
	}

	key := u.objectKey(handle)
	mtype := mimetype.Detect(file.Content).String()

	// Objects are public so that PublicURL can be handed out directly.
	input := s3.PutObjectInput{
		Key:         &key,
		ContentType: &mtype,
		Bucket:      &u.cfg.Bucket,
		Body:        bytes.NewReader(file.Content),
		ACL:         s3types.ObjectCannedACLPublicRead,
	}
	if _, err := u.client.PutObject(ctx, &input); err != nil {
		return "", err
	}

	return handle, nil
}

func (u *S3FileStorage) Read(ctx context.Context, handle string) ([]byte, error) {
	key := u.objectKey(handle)
	object, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &u.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, types.NotFound("file %s", handle)
		}
		return nil, err
	}
	defer object.Body.Close()

	return io.ReadAll(object.Body)
}

func (u *S3FileStorage) Delete(ctx context.Context, handle string) error {
	key := u.objectKey(handle)
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &u.cfg.Bucket,
		Key:    &key,
	})
	return err
}

func (u *S3FileStorage) PublicURL(handle string) string {
	key := u.objectKey(handle)
	if u.cfg.PublicUrl != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.cfg.PublicUrl, "/"), key)
	}

	switch {
	case strings.Contains(u.cfg.EndpointUrl, "digitaloceanspaces.com"):
		return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", u.cfg.Bucket, u.cfg.Region, key)
	case strings.Contains(u.cfg.EndpointUrl, "amazonaws.com"):
		endpoint := strings.TrimPrefix(u.cfg.EndpointUrl, "https://")
		endpoint = strings.TrimSuffix(endpoint, "/")
		return fmt.Sprintf("https://%s.%s/%s", u.cfg.Bucket, endpoint, key)
	default:
		// Generic S3-compatible providers need s3.public_url.
		return ""
	}
}

func (u *S3FileStorage) objectKey(handle string) string {
	handle = strings.TrimPrefix(handle, "/")
	folder := strings.Trim(u.cfg.Folder, "/")
	if folder == "" {
		return handle
	}

	return folder + "/" + handle
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

// S3Storage implements Storage against an S3-compatible object store.
// Paths map directly to object keys under a configured prefix.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage wraps an already-configured s3.Client. Use
// config.LoadDefaultConfig (aws-sdk-go-v2/config) to build the
// aws.Config this client is constructed from, so standard AWS
// credential chains and S3-compatible endpoint overrides apply.
func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Storage) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3Storage) Write(ctx context.Context, path, contentType string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) WriteStream(ctx context.Context, path, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage: buffer stream for %s: %w", path, err)
	}
	return s.Write(ctx, path, contentType, data)
}

func (s *S3Storage) Read(ctx context.Context, path string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if isNoSuchKey(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: s3 get %s: %w", path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("storage: s3 read body for %s: %w", path, err)
	}
	return data, true, nil
}

func (s *S3Storage) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if isNoSuchKey(err) {
		return nil, dberrors.Wrap("storage.ReadStream", path, dberrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: s3 get %s: %w", path, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Info(ctx context.Context, path string) (*Info, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if isNoSuchKey(err) || isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: s3 head %s: %w", path, err)
	}
	info := &Info{}
	if out.ContentLength != nil {
		info.Length = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, true, nil
}

func (s *S3Storage) FileExists(ctx context.Context, path string) (bool, error) {
	_, ok, err := s.Info(ctx, path)
	return ok, err
}

func (s *S3Storage) DeleteFile(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("storage: s3 delete %s: %w", path, err)
	}
	return nil
}

func (s *S3Storage) ListFiles(ctx context.Context, prefix string, limit int, cursor string) (Page, error) {
	out, err := s.client.ListObjectsV2(ctx, s.listInput(prefix, limit, cursor))
	if err != nil {
		return Page{}, fmt.Errorf("storage: s3 list %s: %w", prefix, err)
	}
	page := Page{}
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		name := strings.TrimPrefix(*obj.Key, s.key(prefix))
		if name != "" {
			page.Names = append(page.Names, name)
		}
	}
	if out.NextContinuationToken != nil {
		page.Next = *out.NextContinuationToken
	}
	return page, nil
}

func (s *S3Storage) ListDirs(ctx context.Context, prefix string, limit int, cursor string) (Page, error) {
	out, err := s.client.ListObjectsV2(ctx, s.listInput(prefix, limit, cursor))
	if err != nil {
		return Page{}, fmt.Errorf("storage: s3 list dirs %s: %w", prefix, err)
	}
	page := Page{}
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix == nil {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, s.key(prefix)), "/")
		if name != "" {
			page.Names = append(page.Names, name)
		}
	}
	if out.NextContinuationToken != nil {
		page.Next = *out.NextContinuationToken
	}
	return page, nil
}

func (s *S3Storage) listInput(prefix string, limit int, cursor string) *s3.ListObjectsV2Input {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.key(prefix)),
		Delimiter: aws.String("/"),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}
	return input
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

package mapfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/mattetti/filebuffer"
)

// defaultReadChunkSize is the size of each ranged GET issued by S3 readers.
const defaultReadChunkSize = 64 * 1024 * 1024

// S3FileSystem reads and writes objects addressed as s3://bucket/key.
type S3FileSystem struct {
	s3Client  s3iface.S3API
	chunkSize int64
}

func parseS3URI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", fmt.Errorf("%w: %s", errInvalidS3URI, uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	output, err := s.s3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileInfo{}, err
	}

	return FileInfo{
		Name: filePath,
		Size: aws.Int64Value(output.ContentLength),
	}, nil
}

func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	fInfo, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}

	chunkSize := s.chunkSize
	if chunkSize <= 0 {
		chunkSize = defaultReadChunkSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &s3Reader{
		ctx:       ctx,
		cancel:    cancel,
		client:    s.s3Client,
		bucket:    bucket,
		key:       key,
		offset:    startAt,
		chunkSize: chunkSize,
		totalSize: fInfo.Size,
	}, nil
}

func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	return &s3Writer{
		client: s.s3Client,
		bucket: bucket,
		key:    key,
		buf:    filebuffer.New(nil),
	}, nil
}

func (s *S3FileSystem) Init() error {
	os.Setenv("AWS_SDK_LOAD_CONFIG", "true")
	sess, err := session.NewSession()
	if err != nil {
		return err
	}
	s.s3Client = s3.New(sess)
	return nil
}

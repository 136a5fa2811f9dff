package mapfs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/mattetti/filebuffer"
)

// s3Writer buffers writes and uploads the object on Close.
type s3Writer struct {
	client s3iface.S3API
	bucket string
	key    string
	buf    *filebuffer.Buffer
}

func (s *s3Writer) Write(p []byte) (n int, err error) {
	return s.buf.Write(p)
}

func (s *s3Writer) Close() error {
	if _, err := s.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Body:   s.buf,
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	_, err := s.client.PutObject(input)
	return err
}

// s3Reader streams an object through a sequence of ranged GETs.
// Close may be called while a Read is in progress and aborts it.
type s3Reader struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	client    s3iface.S3API
	bucket    string
	key       string
	offset    int64
	chunkSize int64
	chunk     io.ReadCloser
	totalSize int64
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (s *s3Reader) loadNextChunk() error {
	size := min64(s.chunkSize, s.totalSize-s.offset)
	params := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", s.offset, s.offset+size-1)),
	}
	output, err := s.client.GetObjectWithContext(s.ctx, params)
	if err != nil {
		return err
	}
	s.offset += size
	s.chunk = output.Body
	return nil
}

func (s *s3Reader) Read(b []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chunk == nil {
		if s.offset >= s.totalSize {
			return 0, io.EOF
		}
		if err := s.loadNextChunk(); err != nil {
			return 0, err
		}
	}

	n, err = s.chunk.Read(b)
	if err == io.EOF {
		closeErr := s.chunk.Close()
		s.chunk = nil
		if closeErr != nil {
			return n, closeErr
		}
		if s.offset < s.totalSize {
			err = nil
		}
	}
	return n, err
}

func (s *s3Reader) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chunk == nil {
		return nil
	}
	err := s.chunk.Close()
	s.chunk = nil
	return err
}

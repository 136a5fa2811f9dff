package mapfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	s3iface.S3API
	objects map[string][]byte
	gets    []string
	stall   bool
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	data, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3Client) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if m.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	data, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	var start, end int
	if _, err := fmt.Sscanf(*input.Range, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	m.gets = append(m.gets, *input.Range)
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data[start : end+1])),
	}, nil
}

func (m *mockS3Client) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*input.Bucket+"/"+*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3ImplementsFileSystem(t *testing.T) {
	var fileSystem FileSystem = &S3FileSystem{}
	assert.NotNil(t, fileSystem)
}

func TestParseS3URI(t *testing.T) {
	var uriTests = []struct {
		uri    string
		bucket string
		key    string
		valid  bool
	}{
		{"s3://bucket/key.txt", "bucket", "key.txt", true},
		{"s3://bucket/nested/dir/key", "bucket", "nested/dir/key", true},
		{"s3://bucket", "bucket", "", true},
		{"/local/path", "", "", false},
		{"s3:///key", "", "", false},
	}

	for _, test := range uriTests {
		bucket, key, err := parseS3URI(test.uri)
		if !test.valid {
			assert.Error(t, err, test.uri)
			continue
		}
		assert.Nil(t, err)
		assert.Equal(t, test.bucket, bucket)
		assert.Equal(t, test.key, key)
	}
}

func TestS3Stat(t *testing.T) {
	client := newMockS3Client()
	client.objects["bucket/data.txt"] = []byte("a 1\nb 2\n")
	fs := &S3FileSystem{s3Client: client}

	fInfo, err := fs.Stat("s3://bucket/data.txt")
	assert.Nil(t, err)
	assert.Equal(t, "s3://bucket/data.txt", fInfo.Name)
	assert.Equal(t, int64(8), fInfo.Size)

	_, err = fs.Stat("s3://bucket/missing.txt")
	assert.Error(t, err)
}

func TestS3ReaderChunks(t *testing.T) {
	client := newMockS3Client()
	client.objects["bucket/obj"] = []byte("foo bar baz")
	fs := &S3FileSystem{s3Client: client, chunkSize: 4}

	reader, err := fs.OpenReader("s3://bucket/obj", 0)
	require.NoError(t, err)

	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "foo bar baz", string(contents))
	assert.Equal(t, []string{"bytes=0-3", "bytes=4-7", "bytes=8-10"}, client.gets)
	assert.Nil(t, reader.Close())
}

func TestS3ReaderWithOffset(t *testing.T) {
	client := newMockS3Client()
	client.objects["bucket/obj"] = []byte("foo bar baz")
	fs := &S3FileSystem{s3Client: client}

	reader, err := fs.OpenReader("s3://bucket/obj", 4)
	require.NoError(t, err)

	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "bar baz", string(contents))
	assert.Nil(t, reader.Close())
}

func TestS3ReaderEmptyObject(t *testing.T) {
	client := newMockS3Client()
	client.objects["bucket/empty"] = []byte{}
	fs := &S3FileSystem{s3Client: client}

	reader, err := fs.OpenReader("s3://bucket/empty", 0)
	require.NoError(t, err)

	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Empty(t, contents)
	assert.Empty(t, client.gets)
}

func TestS3ReaderCloseAbortsRead(t *testing.T) {
	client := newMockS3Client()
	client.objects["bucket/obj"] = []byte("foo bar baz")
	client.stall = true
	fs := &S3FileSystem{s3Client: client}

	reader, err := fs.OpenReader("s3://bucket/obj", 0)
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := reader.Read(make([]byte, 16))
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, reader.Close())
	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Read still blocked after Close")
	}
}

func TestS3Writer(t *testing.T) {
	client := newMockS3Client()
	fs := &S3FileSystem{s3Client: client}

	writer, err := fs.OpenWriter("s3://bucket/out/results.txt")
	require.NoError(t, err)

	_, err = writer.Write([]byte("foo "))
	assert.Nil(t, err)
	_, err = writer.Write([]byte("bar"))
	assert.Nil(t, err)

	_, uploaded := client.objects["bucket/out/results.txt"]
	assert.False(t, uploaded)

	assert.Nil(t, writer.Close())
	assert.Equal(t, "foo bar", string(client.objects["bucket/out/results.txt"]))
}

func TestS3ReaderWriterLive(t *testing.T) {
	bucket := os.Getenv("AWS_TEST_BUCKET")
	if bucket == "" {
		t.Skipf("No test bucket is set under $AWS_TEST_BUCKET")
	}

	fs := &S3FileSystem{}
	require.NoError(t, fs.Init())

	path := fmt.Sprintf("s3://%s/mapper-testobj", bucket)
	writer, err := fs.OpenWriter(path)
	require.NoError(t, err)
	_, err = writer.Write([]byte("foo bar baz"))
	assert.Nil(t, err)
	require.NoError(t, writer.Close())

	reader, err := fs.OpenReader(path, 4)
	require.NoError(t, err)
	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "bar baz", string(contents))
	assert.Nil(t, reader.Close())
}

package s3blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestWriter_Put(t *testing.T) {
	t.Parallel()

	fp := &fakePutter{}
	w := &Writer{client: fp, bucket: "archive"}

	err := w.Put(context.Background(), "transitions/0xabc/x.json", strings.NewReader(`{"a":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "archive", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "transitions/0xabc/x.json", aws.ToString(fp.in.Key))
	assert.Equal(t, "application/json", aws.ToString(fp.in.ContentType))
	assert.Equal(t, `{"a":1}`, fp.body)

	fp.err = errors.New("access denied")
	err = w.Put(context.Background(), "k", strings.NewReader(""), "text/plain")
	require.ErrorIs(t, err, fp.err)
	assert.Contains(t, err.Error(), "put object k")
}

func TestNormaliseEndpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.example.com", normaliseEndpoint("r2.example.com", true))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	require.Error(t, err)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       "localhost:9000",
		Region:         "us-east-1",
		Bucket:         "b",
		AccessKey:      "ak",
		SecretKey:      "sk",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", c.Bucket())
	assert.NotNil(t, c.S3())
}

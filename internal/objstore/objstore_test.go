package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	put     *s3.PutObjectInput
	get     *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.put = in
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=put"}, nil
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.get = in
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=get"}, nil
}

type fakeGetter struct{ body string }

func (f fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if *in.Key != "k.jpeg" {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(f.body))}, nil
}

func TestS3PresignPut(t *testing.T) {
	p := &fakePresigner{}
	s := &S3{Bucket: "uploads", Presign: p}

	u, err := s.PresignPut(context.Background(), "abc.jpeg", "picture/jpeg", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/abc.jpeg?sig=put", u)
	assert.Equal(t, "uploads", *p.put.Bucket)
	assert.Equal(t, "picture/jpeg", *p.put.ContentType)
	assert.Equal(t, 10*time.Minute, p.expires)

	p.err = errors.New("no creds")
	_, err = s.PresignPut(context.Background(), "abc.jpeg", "picture/jpeg", time.Minute)
	assert.ErrorContains(t, err, "no creds")
}

func TestS3PresignGetAndOpen(t *testing.T) {
	p := &fakePresigner{}
	s := &S3{Bucket: "uploads", Presign: p, Client: fakeGetter{body: "jpeg-bytes"}}

	u, err := s.PresignGet(context.Background(), "k.jpeg", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "sig=get")
	assert.Equal(t, time.Minute, p.expires)

	rc, err := s.Open(context.Background(), "k.jpeg")
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "jpeg-bytes", string(b))

	_, err = s.Open(context.Background(), "missing.jpeg")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	tests := []struct {
		key    string
		id     string
		ext    string
		wantOK bool
	}{
		{"0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11.jpeg", "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11", "jpeg", true},
		{"abc.m4a", "abc", "m4a", true},
		{"noext", "", "", false},
		{".jpeg", "", "", false},
		{"user/abc.jpeg", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			id, ext, ok := ParseKey(tc.key)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.id, id)
				assert.Equal(t, tc.ext, ext)
				assert.Equal(t, tc.key, BuildKey(id, ext))
			}
		})
	}
}

func TestUnescapeKey(t *testing.T) {
	assert.Equal(t, "my meal.jpeg", UnescapeKey("my+meal.jpeg"))
	assert.Equal(t, "a/b.jpeg", UnescapeKey("a%2Fb.jpeg"))
	assert.Equal(t, "bad%zz.jpeg", UnescapeKey("bad%zz.jpeg"))
}

package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyforge/fitsflow/pkg/storage"
	"github.com/skyforge/fitsflow/pkg/storage/tempcache"
)

// fakeClient is an in-memory S3 backend.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte)}
}

func (f *fakeClient) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(string(data))),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeClient) HeadObject(ctx context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeClient) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) CopyObject(ctx context.Context, in *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// CopySource is "bucket/key", path-escaped
	source := aws.ToString(in.CopySource)
	idx := strings.Index(source, "/")
	key := source[idx+1:]
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = data
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

// fakePresigner returns a fixed-host URL.
type fakePresigner struct{}

func (fakePresigner) PresignGetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{
		URL: "http://minio:9000/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc",
	}, nil
}

func newTestProvider(t *testing.T, client Client) *Provider {
	t.Helper()
	cache, err := tempcache.New(t.TempDir(), 1<<20)
	require.NoError(t, err)
	p, err := New(client, fakePresigner{}, Config{
		Bucket:         "fits-archive",
		Endpoint:       "http://minio:9000",
		PublicEndpoint: "https://files.example.com",
		Cache:          cache,
	})
	require.NoError(t, err)
	return p
}

func TestProvider_ReadToTempMaterializesThroughCache(t *testing.T) {
	client := newFakeClient()
	client.objects["obs/file.fits"] = []byte("fits data")
	p := newTestProvider(t, client)
	ctx := context.Background()

	path, err := p.ReadToTemp(ctx, "obs/file.fits")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fits data", string(data))
	assert.Equal(t, 1, client.gets)

	// Second read is served from cache without touching S3
	path2, err := p.ReadToTemp(ctx, "obs/file.fits")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, 1, client.gets)
}

func TestProvider_ReadToTempRedownloadsAfterEviction(t *testing.T) {
	client := newFakeClient()
	client.objects["obs/file.fits"] = []byte("fits data")
	p := newTestProvider(t, client)
	ctx := context.Background()

	path, err := p.ReadToTemp(ctx, "obs/file.fits")
	require.NoError(t, err)

	// Simulate an eviction race: index says cached but the file is gone
	require.NoError(t, os.Remove(path))

	path2, err := p.ReadToTemp(ctx, "obs/file.fits")
	require.NoError(t, err)
	assert.FileExists(t, path2)
	assert.Equal(t, 2, client.gets)
}

func TestProvider_ReadMissing(t *testing.T) {
	p := newTestProvider(t, newFakeClient())

	_, err := p.ReadToTemp(context.Background(), "missing.fits")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProvider_WriteStatDelete(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(t, client)
	ctx := context.Background()

	require.NoError(t, p.WriteFromBytes(ctx, "obs/a.fits", []byte("abc")))

	info, err := p.Stat(ctx, "obs/a.fits")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)

	ok, err := p.Exists(ctx, "obs/a.fits")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Delete(ctx, "obs/a.fits"))
	ok, err = p.Exists(ctx, "obs/a.fits")
	require.NoError(t, err)
	assert.False(t, ok)

	// S3 delete is idempotent
	require.NoError(t, p.Delete(ctx, "obs/a.fits"))
}

func TestProvider_WriteFromPath(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(t, client)
	ctx := context.Background()

	staged := t.TempDir() + "/staged.fits"
	require.NoError(t, os.WriteFile(staged, []byte("staged data"), 0644))

	require.NoError(t, p.WriteFromPath(ctx, "obs/staged.fits", staged))
	assert.Equal(t, []byte("staged data"), client.objects["obs/staged.fits"])
}

func TestProvider_List(t *testing.T) {
	client := newFakeClient()
	client.objects["obs1/a.fits"] = []byte("a")
	client.objects["obs1/b.fits.part"] = []byte("b")
	client.objects["obs2/c.fits"] = []byte("c")
	p := newTestProvider(t, client)

	keys, err := p.List(context.Background(), "obs1")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"obs1/a.fits", "obs1/b.fits.part"}, keys)
}

func TestProvider_Rename(t *testing.T) {
	client := newFakeClient()
	client.objects["obs/file.fits.part"] = []byte("partial")
	p := newTestProvider(t, client)
	ctx := context.Background()

	require.NoError(t, p.Rename(ctx, "obs/file.fits.part", "obs/file.fits"))

	_, hasOld := client.objects["obs/file.fits.part"]
	assert.False(t, hasOld)
	assert.Equal(t, []byte("partial"), client.objects["obs/file.fits"])

	err := p.Rename(ctx, "obs/missing.part", "obs/missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProvider_PresignedURLRewritesEndpoint(t *testing.T) {
	p := newTestProvider(t, newFakeClient())

	url, err := p.PresignedURL(context.Background(), "obs/file.fits", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://files.example.com/"), "got %s", url)
	assert.Contains(t, url, "obs/file.fits")
}

func TestProvider_ResolveLocalPathUnsupported(t *testing.T) {
	p := newTestProvider(t, newFakeClient())

	_, err := p.ResolveLocalPath("obs/file.fits")
	assert.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestProvider_RejectsInvalidKey(t *testing.T) {
	p := newTestProvider(t, newFakeClient())
	ctx := context.Background()

	_, err := p.ReadToTemp(ctx, "../escape.fits")
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))

	err = p.WriteFromBytes(ctx, "/abs.fits", []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))
}

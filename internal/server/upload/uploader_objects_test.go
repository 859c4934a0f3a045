package upload

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPut(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := []byte("single shot body")
	res, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "a.txt", Size: int64(len(data)), Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, env.digest(data), res.Object.Digest)
	assert.Equal(t, data, readObject(t, env.uploader, res.Object))

	// same content again is a dedup hit with no extra backend write
	again, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "b.txt", Size: -1, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, res.Object.ID, again.Object.ID)
	assert.Len(t, env.backend.Keys(), 1)

	// multipart initiate sees objects stored by put
	init, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "c", Size: int64(len(data)), Digest: res.Object.Digest})
	require.NoError(t, err)
	assert.Equal(t, res.Object.ID, init.Object.ID)
}

func TestPutEmptyObject(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)

	res, err := env.uploader.Put(context.Background(), &PutParams{BucketID: "photos", Name: "empty", Size: 0, Body: strings.NewReader("")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Object.Size)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", res.Object.Digest)
	assert.Empty(t, readObject(t, env.uploader, res.Object))
}

func TestPutValidation(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	_, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "a", Size: 10, Body: strings.NewReader("short")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.uploader.Put(ctx, &PutParams{BucketID: "small", Name: "a", Size: -1, Body: strings.NewReader("123456789")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.uploader.Put(ctx, &PutParams{BucketID: "small", Name: "a", Size: 9, Body: strings.NewReader("123456789")})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "a", Size: 3, Digest: "abc123", Body: strings.NewReader("abc")})
	assert.ErrorIs(t, err, ErrDigestMismatch)

	_, err = env.uploader.Put(ctx, &PutParams{BucketID: "nope", Name: "a", Size: 3, Body: strings.NewReader("abc")})
	assert.True(t, IsNotFound(err))

	assert.Empty(t, env.backend.Keys())
}

func TestRapidAndDeleteReferenceCounting(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := []byte("shared bytes")
	first := env.upload(t, data)

	second, err := env.uploader.Rapid(ctx, &RapidParams{BucketID: "photos", Name: "copy.bin", Digest: first.Digest})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "copy.bin", second.Name)
	assert.Equal(t, first.Key, second.Key)

	_, err = env.uploader.Rapid(ctx, &RapidParams{BucketID: "photos", Name: "x", Digest: "ffff"})
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)

	// bytes stay while another record references them
	_, err = env.uploader.DeleteObject(ctx, "photos", first.ID)
	require.NoError(t, err)
	assert.Equal(t, data, readObject(t, env.uploader, second))

	_, err = env.uploader.DeleteObject(ctx, "photos", second.ID)
	require.NoError(t, err)
	assert.Empty(t, env.backend.Keys())

	_, err = env.uploader.DeleteObject(ctx, "photos", second.ID)
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)
}

func TestObjectReads(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	obj := env.upload(t, []byte("readable"))

	got, err := env.uploader.Object(ctx, "photos", obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)

	_, err = env.uploader.Object(ctx, "photos", "missing")
	assert.True(t, IsNotFound(err))

	_, err = env.uploader.Object(ctx, "nope", obj.ID)
	assert.True(t, IsNotFound(err))

	list, err := env.uploader.Objects(ctx, "photos")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// record without bytes
	_, err = env.backend.DeleteObject(ctx, obj.Key)
	require.NoError(t, err)
	_, _, err = env.uploader.Open(ctx, "photos", obj.ID)
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)
}

func TestUnconfirmedPutIsNotDedupTarget(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := []byte("draft content")
	draft, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "draft", Size: -1, Body: bytes.NewReader(data), Unconfirmed: true})
	require.NoError(t, err)
	assert.False(t, draft.Object.Confirmed)

	_, err = env.uploader.Rapid(ctx, &RapidParams{BucketID: "photos", Name: "copy", Digest: draft.Object.Digest})
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)

	init, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "multi", Size: int64(len(data)), Digest: draft.Object.Digest})
	require.NoError(t, err)
	assert.Nil(t, init.Object)
	require.NoError(t, env.uploader.Cancel(ctx, init.SessionID))

	again, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "again", Size: -1, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.False(t, again.Deduplicated)
	assert.True(t, again.Object.Confirmed)
	assert.NotEqual(t, draft.Object.ID, again.Object.ID)
}

func TestConfirm(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := []byte("confirm me")
	draft, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "draft", Size: -1, Body: bytes.NewReader(data), Unconfirmed: true})
	require.NoError(t, err)

	n, err := env.uploader.Confirm(ctx, "photos", []string{draft.Object.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// already confirmed
	n, err = env.uploader.Confirm(ctx, "photos", []string{draft.Object.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	copied, err := env.uploader.Rapid(ctx, &RapidParams{BucketID: "photos", Name: "copy", Digest: draft.Object.Digest, Unconfirmed: true})
	require.NoError(t, err)
	assert.False(t, copied.Confirmed)
	assert.Equal(t, draft.Object.Key, copied.Key)

	_, err = env.uploader.Confirm(ctx, "photos", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = env.uploader.Confirm(ctx, "photos", make([]string, maxConfirmIDs+1))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = env.uploader.Confirm(ctx, "nope", []string{draft.Object.ID})
	assert.True(t, IsNotFound(err))
}

func TestSweepRemovesStaleUnconfirmedObjects(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	kept := env.upload(t, []byte("kept bytes"))
	draft, err := env.uploader.Put(ctx, &PutParams{BucketID: "photos", Name: "draft", Size: -1, Body: strings.NewReader("draft bytes"), Unconfirmed: true})
	require.NoError(t, err)
	// an unconfirmed rapid copy shares the confirmed object's bytes
	shared, err := env.uploader.Rapid(ctx, &RapidParams{BucketID: "photos", Name: "shared", Digest: kept.Digest, Unconfirmed: true})
	require.NoError(t, err)
	require.Len(t, env.backend.Keys(), 2)

	n, err := env.uploader.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh drafts survive")

	env.uploader.now = func() time.Time { return time.Now().Add(2 * DefaultUnconfirmedTTL) }
	n, err = env.uploader.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = env.uploader.Object(ctx, "photos", draft.Object.ID)
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)
	_, err = env.uploader.Object(ctx, "photos", shared.ID)
	assert.ErrorIs(t, err, catalog.ErrObjectNotFound)

	assert.Equal(t, []string{kept.Key}, env.backend.Keys())
	assert.Equal(t, []byte("kept bytes"), readObject(t, env.uploader, kept))
}

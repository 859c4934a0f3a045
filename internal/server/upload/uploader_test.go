package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/syftblob/internal/db"
	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBackend struct {
	*blob.MemoryBackend
	failObjectPuts atomic.Int32
}

func (f *flakyBackend) PutObject(ctx context.Context, params *blob.PutObjectParams) (*blob.PutObjectResponse, error) {
	if strings.HasPrefix(params.Key, "objects/") && f.failObjectPuts.Add(-1) >= 0 {
		return nil, errors.New("injected backend failure")
	}
	return f.MemoryBackend.PutObject(ctx, params)
}

type testEnv struct {
	uploader *Uploader
	backend  *flakyBackend
	catalog  *catalog.SqliteCatalog
	sessions SessionStore
}

func newTestEnv(t *testing.T, store string, mutate func(cfg *Config)) *testEnv {
	t.Helper()

	conn, err := db.NewSqliteDB(db.WithPath(filepath.Join(t.TempDir(), "syftblob.db")))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cat, err := catalog.NewSqliteCatalog(conn)
	require.NoError(t, err)

	var sessions SessionStore
	if store == SessionStoreSqlite {
		sessions, err = NewSqliteSessionStore(conn)
		require.NoError(t, err)
	} else {
		sessions = NewMemorySessionStore()
	}

	registry := bucket.NewRegistry(bucket.StaticLoader{{ID: "photos"}, {ID: "small", MaxObjectSize: 8}}, 0)
	require.NoError(t, registry.Refresh(context.Background()))

	cfg := DefaultConfig()
	cfg.ChunkSize = 4
	cfg.SpoolDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	backend := &flakyBackend{MemoryBackend: blob.NewMemoryBackend()}
	u, err := NewUploader(cfg, sessions, cat, backend, registry)
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })

	return &testEnv{uploader: u, backend: backend, catalog: cat, sessions: sessions}
}

func (e *testEnv) digest(data []byte) string {
	return e.uploader.Addresser().DigestOf(data)
}

// upload sends every chunk in order and returns the object from the last one
func (e *testEnv) upload(t *testing.T, data []byte) *catalog.Object {
	t.Helper()
	ctx := context.Background()

	res, err := e.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "data.bin", Size: int64(len(data)), Digest: e.digest(data)})
	require.NoError(t, err)
	if res.Object != nil {
		return res.Object
	}

	chunkSize := int(res.ChunkSize)
	var last *ChunkResult
	for i := range res.ChunkCount {
		end := min((i+1)*chunkSize, len(data))
		last, err = e.uploader.AcceptChunk(ctx, res.SessionID, i, data[i*chunkSize:end])
		require.NoError(t, err)
	}
	require.NotNil(t, last.Object)
	return last.Object
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func readObject(t *testing.T, u *Uploader, obj *catalog.Object) []byte {
	t.Helper()
	_, body, err := u.Open(context.Background(), obj.BucketID, obj.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

var stores = []string{SessionStoreMemory, SessionStoreSqlite}

// ===================================================================================================

func TestInitiateValidation(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		params InitiateParams
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown-bucket",
			params: InitiateParams{BucketID: "nope", Name: "a", Size: 1, Digest: "abc123"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, bucket.ErrBucketNotFound)
				assert.True(t, IsNotFound(err))
			},
		},
		{name: "empty-name", params: InitiateParams{BucketID: "photos", Size: 1, Digest: "abc123"}},
		{name: "zero-size", params: InitiateParams{BucketID: "photos", Name: "a", Size: 0, Digest: "abc123"}},
		{name: "negative-size", params: InitiateParams{BucketID: "photos", Name: "a", Size: -5, Digest: "abc123"}},
		{name: "bucket-limit", params: InitiateParams{BucketID: "small", Name: "a", Size: 9, Digest: "abc123"}},
		{name: "bad-digest", params: InitiateParams{BucketID: "photos", Name: "a", Size: 1, Digest: "nothex"}},
		{name: "empty-digest", params: InitiateParams{BucketID: "photos", Name: "a", Size: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.uploader.Initiate(ctx, &tt.params)
			require.Error(t, err)
			if tt.check != nil {
				tt.check(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "small", Name: "a", Size: 8, Digest: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunkCount)
}

func TestUploadEndToEnd(t *testing.T) {
	for _, store := range stores {
		for _, compression := range []string{CompressionNone, CompressionLZ4, CompressionZstd} {
			t.Run(store+"/"+compression, func(t *testing.T) {
				env := newTestEnv(t, store, func(cfg *Config) {
					cfg.ChunkSize = 1024
					cfg.StagingCompression = compression
				})

				data := append(bytes.Repeat([]byte("syftblob "), 400), randomBytes(t, 1500)...)
				obj := env.upload(t, data)

				assert.True(t, obj.Confirmed)
				assert.Equal(t, int64(len(data)), obj.Size)
				assert.Equal(t, env.digest(data), obj.Digest)
				assert.Equal(t, "data.bin", obj.Name)
				assert.Equal(t, data, readObject(t, env.uploader, obj))

				// only the permanent object is left in the backend
				assert.Equal(t, []string{obj.Key}, env.backend.Keys())
			})
		}
	}
}

func TestUpload12MB(t *testing.T) {
	env := newTestEnv(t, SessionStoreSqlite, func(cfg *Config) { cfg.ChunkSize = DefaultChunkSize })
	ctx := context.Background()

	data := randomBytes(t, 12_000_000)
	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "big.bin", Size: int64(len(data)), Digest: env.digest(data)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunkCount)
	assert.Equal(t, []int{0, 1, 2}, res.Pending)

	bounds := [][2]int{{0, 5_242_880}, {5_242_880, 10_485_760}, {10_485_760, 12_000_000}}
	var last *ChunkResult
	for i, b := range bounds {
		last, err = env.uploader.AcceptChunk(ctx, res.SessionID, i, data[b[0]:b[1]])
		require.NoError(t, err)
	}
	assert.Equal(t, 1_514_240, bounds[2][1]-bounds[2][0])

	require.NotNil(t, last.Object)
	assert.True(t, last.Object.Confirmed)
	assert.Equal(t, int64(12_000_000), last.Object.Size)
	assert.Equal(t, data, readObject(t, env.uploader, last.Object))
}

func TestInitiateDedup(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := []byte("dedup me please")
	obj := env.upload(t, data)
	keys := env.backend.Keys()

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "other.bin", Size: int64(len(data)), Digest: strings.ToUpper(env.digest(data))})
	require.NoError(t, err)
	assert.Empty(t, res.SessionID)
	require.NotNil(t, res.Object)
	assert.Equal(t, obj.ID, res.Object.ID)
	assert.Empty(t, res.Pending)
	assert.Equal(t, keys, env.backend.Keys(), "no backend write on dedup")

	objects, err := env.uploader.Objects(ctx, "photos")
	require.NoError(t, err)
	assert.Len(t, objects, 1, "no new record on dedup")
}

func TestInitiateDedupShortDigest(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	existing, err := env.catalog.Create(ctx, &catalog.CreateParams{BucketID: "photos", Name: "a", Size: 6, Digest: "abc123", Key: "objects/photos/abc/x"})
	require.NoError(t, err)

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "b", Size: 6, Digest: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.Object.ID)
	assert.Empty(t, res.Pending)
	assert.Empty(t, res.SessionID)
}

func TestDigestMismatch(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()

			data := []byte("0123456789")
			wrong := env.digest([]byte("something else"))
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 10, Digest: wrong})
			require.NoError(t, err)

			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, data[0:4])
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:8])
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 2, data[8:10])
			assert.ErrorIs(t, err, ErrDigestMismatch)

			objects, err := env.uploader.Objects(ctx, "photos")
			require.NoError(t, err)
			assert.Empty(t, objects)
			assert.Empty(t, env.backend.Keys())

			_, err = env.uploader.Status(ctx, res.SessionID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestResumability(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()

			data := randomBytes(t, 40)
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 40, Digest: env.digest(data)})
			require.NoError(t, err)
			require.Equal(t, 10, res.ChunkCount)

			for _, i := range []int{0, 1, 2, 5, 9} {
				_, err := env.uploader.AcceptChunk(ctx, res.SessionID, i, data[i*4:i*4+4])
				require.NoError(t, err)
			}

			status, err := env.uploader.Status(ctx, res.SessionID)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 4, 6, 7, 8}, status.Pending)
			assert.Equal(t, int64(4), status.ChunkSize)
			assert.Equal(t, 10, status.ChunkCount)
			assert.Equal(t, StateUploading, status.State)
			assert.Equal(t, status.CreatedAt.Add(DefaultSessionTTL), status.ExpiresAt)

			var last *ChunkResult
			for _, i := range status.Pending {
				last, err = env.uploader.AcceptChunk(ctx, res.SessionID, i, data[i*4:i*4+4])
				require.NoError(t, err)
			}
			require.NotNil(t, last.Object)
			assert.Equal(t, data, readObject(t, env.uploader, last.Object))
		})
	}
}

func TestAcceptChunkIdempotent(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	data := randomBytes(t, 12)
	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 12, Digest: env.digest(data)})
	require.NoError(t, err)

	first, err := env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:8])
	require.NoError(t, err)
	second, err := env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:8])
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, first.Pending)
	assert.Equal(t, first.Pending, second.Pending)
}

func TestAcceptChunkErrors(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 10, Digest: "abc123"})
	require.NoError(t, err)

	_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 3, []byte("xx"))
	assert.ErrorIs(t, err, ErrChunkOutOfRange)

	_, err = env.uploader.AcceptChunk(ctx, res.SessionID, -1, []byte("xxxx"))
	assert.ErrorIs(t, err, ErrChunkOutOfRange)

	_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, []byte("xxx"))
	assert.ErrorIs(t, err, ErrChunkSizeMismatch)

	// the short last chunk must be exactly its planned length
	_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 2, []byte("xxxx"))
	assert.ErrorIs(t, err, ErrChunkSizeMismatch)

	status, err := env.uploader.Status(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, status.Pending, "rejected chunks are not marked")
	assert.Empty(t, env.backend.Keys())

	_, err = env.uploader.AcceptChunk(ctx, "missing", 0, []byte("xxxx"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentChunksFinalizeOnce(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()

			const chunks = 20
			data := randomBytes(t, chunks*4)
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: int64(len(data)), Digest: env.digest(data)})
			require.NoError(t, err)

			var (
				wg      sync.WaitGroup
				objects atomic.Int32
			)
			for n := range chunks * 2 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					r, err := env.uploader.AcceptChunk(ctx, res.SessionID, i, data[i*4:i*4+4])
					if err != nil {
						// a duplicate that lost the race with finalize sees the session gone
						assert.ErrorIs(t, err, ErrSessionNotFound)
						return
					}
					if r.Object != nil {
						objects.Add(1)
					}
				}(n % chunks)
			}
			wg.Wait()

			assert.Equal(t, int32(1), objects.Load())
			list, err := env.uploader.Objects(ctx, "photos")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, data, readObject(t, env.uploader, list[0]))
			assert.Equal(t, []string{list[0].Key}, env.backend.Keys())
		})
	}
}

func TestFinalizeRetryAfterBackendFailure(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()
			env.backend.failObjectPuts.Store(1)

			data := randomBytes(t, 6)
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 6, Digest: env.digest(data)})
			require.NoError(t, err)

			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, data[:4])
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:])
			assert.ErrorIs(t, err, ErrBackendUnavailable)

			status, err := env.uploader.Status(ctx, res.SessionID)
			require.NoError(t, err)
			assert.Equal(t, StateUploading, status.State)
			assert.Empty(t, status.Pending)

			obj, err := env.uploader.Finalize(ctx, res.SessionID)
			require.NoError(t, err)
			assert.Equal(t, data, readObject(t, env.uploader, obj))

			_, err = env.uploader.Finalize(ctx, res.SessionID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestFinalizeRequiresAllChunks(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 8, Digest: "abc123"})
	require.NoError(t, err)

	_, err = env.uploader.Finalize(ctx, res.SessionID)
	assert.ErrorIs(t, err, ErrChunksPending)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCancel(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()

			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 12, Digest: "abc123"})
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, []byte("aaaa"))
			require.NoError(t, err)
			require.Len(t, env.backend.Keys(), 1)

			require.NoError(t, env.uploader.Cancel(ctx, res.SessionID))
			assert.Empty(t, env.backend.Keys())

			_, err = env.uploader.Status(ctx, res.SessionID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
			assert.ErrorIs(t, env.uploader.Cancel(ctx, res.SessionID), ErrSessionNotFound)
		})
	}
}

// vanishingStore deletes the session just before the chunk is marked, as a
// concurrent cancel would
type vanishingStore struct {
	SessionStore
}

func (v vanishingStore) MarkReceived(ctx context.Context, id string, index int) (MarkResult, error) {
	if err := v.SessionStore.Delete(ctx, id); err != nil {
		return MarkResult{}, err
	}
	return v.SessionStore.MarkReceived(ctx, id, index)
}

func TestLateChunkAfterCancelIsCleanedUp(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()
			env.uploader.sessions = vanishingStore{env.sessions}

			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 8, Digest: "abc123"})
			require.NoError(t, err)

			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, []byte("aaaa"))
			assert.ErrorIs(t, err, ErrSessionNotFound)
			assert.Empty(t, env.backend.Keys(), "orphaned staged chunk removed")
		})
	}
}

// gatedStore holds ClaimTeardown until release is closed. With claimFirst the
// claim is taken before it waits, otherwise after.
type gatedStore struct {
	SessionStore
	claimFirst bool
	reached    chan struct{}
	release    chan struct{}
}

func newGatedStore(inner SessionStore, claimFirst bool) *gatedStore {
	return &gatedStore{
		SessionStore: inner,
		claimFirst:   claimFirst,
		reached:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *gatedStore) ClaimTeardown(ctx context.Context, id string) (*Session, error) {
	if g.claimFirst {
		session, err := g.SessionStore.ClaimTeardown(ctx, id)
		close(g.reached)
		<-g.release
		return session, err
	}
	close(g.reached)
	<-g.release
	return g.SessionStore.ClaimTeardown(ctx, id)
}

func TestCancelAfterLastChunkIsRefused(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()
			gate := newGatedStore(env.sessions, false)
			env.uploader.sessions = gate

			data := []byte("aaaabbbb")
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 8, Digest: env.digest(data)})
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, data[:4])
			require.NoError(t, err)

			cancelErr := make(chan error, 1)
			go func() { cancelErr <- env.uploader.Cancel(ctx, res.SessionID) }()
			<-gate.reached

			last, err := env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:])
			require.NoError(t, err)
			require.NotNil(t, last.Object)

			close(gate.release)
			err = <-cancelErr
			require.Error(t, err, "cancel must not succeed for a confirmed upload")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			objects, err := env.catalog.List(ctx, "photos")
			require.NoError(t, err)
			require.Len(t, objects, 1)
			assert.Equal(t, data, readObject(t, env.uploader, objects[0]))
		})
	}
}

func TestLastChunkAfterCancelClaimIsRefused(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()
			gate := newGatedStore(env.sessions, true)
			env.uploader.sessions = gate

			data := []byte("aaaabbbb")
			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 8, Digest: env.digest(data)})
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 0, data[:4])
			require.NoError(t, err)

			cancelErr := make(chan error, 1)
			go func() { cancelErr <- env.uploader.Cancel(ctx, res.SessionID) }()
			<-gate.reached

			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 1, data[4:])
			assert.ErrorIs(t, err, ErrSessionNotFound)

			close(gate.release)
			require.NoError(t, <-cancelErr)

			objects, err := env.catalog.List(ctx, "photos")
			require.NoError(t, err)
			assert.Empty(t, objects)
			assert.Empty(t, env.backend.Keys())
		})
	}
}

// brokenStore fails every read the way a locked or corrupt database would
type brokenStore struct {
	SessionStore
}

func (brokenStore) Get(ctx context.Context, id string) (*Session, error) {
	return nil, errors.New("database is locked")
}

func (brokenStore) ClaimTeardown(ctx context.Context, id string) (*Session, error) {
	return nil, errors.New("database is locked")
}

func TestSessionStoreFailuresAreUnavailable(t *testing.T) {
	env := newTestEnv(t, SessionStoreMemory, nil)
	ctx := context.Background()
	env.uploader.sessions = brokenStore{env.sessions}

	_, err := env.uploader.AcceptChunk(ctx, "id", 0, []byte("aaaa"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = env.uploader.Status(ctx, "id")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, env.uploader.Cancel(ctx, "id"), ErrBackendUnavailable)
	assert.ErrorIs(t, env.uploader.Expire(ctx, "id"), ErrBackendUnavailable)
}

func TestSweepExpiresOldSessions(t *testing.T) {
	for _, store := range stores {
		t.Run(store, func(t *testing.T) {
			env := newTestEnv(t, store, nil)
			ctx := context.Background()

			res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 8, Digest: "abc123"})
			require.NoError(t, err)
			_, err = env.uploader.AcceptChunk(ctx, res.SessionID, 1, []byte("bbbb"))
			require.NoError(t, err)

			n, err := env.uploader.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n, "fresh sessions survive")

			env.uploader.now = func() time.Time { return time.Now().Add(2 * DefaultSessionTTL) }
			n, err = env.uploader.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Empty(t, env.backend.Keys())

			_, err = env.uploader.Status(ctx, res.SessionID)
			assert.ErrorIs(t, err, ErrSessionNotFound)

			// expiring again is a no-op
			assert.NoError(t, env.uploader.Expire(ctx, res.SessionID))
		})
	}
}

func TestStartReleasesStaleClaims(t *testing.T) {
	env := newTestEnv(t, SessionStoreSqlite, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := env.uploader.Initiate(ctx, &InitiateParams{BucketID: "photos", Name: "a", Size: 4, Digest: "abc123"})
	require.NoError(t, err)
	mark, err := env.sessions.MarkReceived(ctx, res.SessionID, 0)
	require.NoError(t, err)
	require.True(t, mark.Completed)

	require.NoError(t, env.uploader.Start(ctx))

	status, err := env.uploader.Status(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StateUploading, status.State)
}

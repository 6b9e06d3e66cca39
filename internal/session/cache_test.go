package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/flow/flowtest"
)

func scriptCreds() flow.Credentials {
	return flow.Credentials{Method: "script", ScriptName: "shotpipe", APIKey: "key"}
}

// dialer returns a DialFunc handing out the given fakes in order and a
// counter of dials performed.
func dialer(fakes ...*flowtest.Fake) (DialFunc, *int) {
	dials := 0
	return func(site string, creds flow.Credentials) flow.Session {
		f := fakes[dials]
		dials++
		return f
	}, &dials
}

func liveFake() *flowtest.Fake {
	return &flowtest.Fake{
		FindResults: map[string][]flow.Record{
			flow.EntityProject: {{"type": "Project", "id": 1, "name": "Alpha"}},
		},
	}
}

func TestConnect_CachesByIdentity(t *testing.T) {
	dial, dials := dialer(liveFake(), liveFake())
	cache := NewCache(dial, nil)

	first, cached, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	assert.True(t, cached, "identical identity with live connection must not re-authenticate")
	assert.Same(t, first, second)
	assert.Equal(t, 1, *dials)
}

func TestConnect_DistinctIdentitiesDialSeparately(t *testing.T) {
	dial, dials := dialer(liveFake(), liveFake())
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)

	userCreds := flow.Credentials{Method: "user", Login: "artist", Password: "pw"}
	_, _, err = cache.Connect(context.Background(), "https://a", userCreds)
	require.NoError(t, err)

	assert.Equal(t, 2, *dials)
	assert.Equal(t, 2, cache.Len())
}

func TestConnect_ProbeFailureReconnectsOnce(t *testing.T) {
	stale := liveFake()
	fresh := liveFake()
	dial, dials := dialer(stale, fresh)
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)

	// Simulate the remote dropping the cached connection.
	stale.FindErr = map[string]error{flow.EntityProject: errors.New("connection reset")}

	sess, cached, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Same(t, flow.Session(fresh), sess)
	assert.Equal(t, 2, *dials, "probe failure must force exactly one reconnection attempt")
}

func TestConnect_ReconnectFailureSurfaces(t *testing.T) {
	stale := liveFake()
	dead := &flowtest.Fake{FindErr: map[string]error{flow.EntityProject: errors.New("unreachable")}}
	dial, _ := dialer(stale, dead)
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)

	stale.FindErr = map[string]error{flow.EntityProject: errors.New("connection reset")}

	_, _, err = cache.Connect(context.Background(), "https://a", scriptCreds())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRemote))
	assert.Equal(t, 0, cache.Len(), "failed reconnect must not leave a cache entry")
}

func TestConnect_AuthFaultMapsToInvalidCredentials(t *testing.T) {
	rejected := &flowtest.Fake{
		FindErr: map[string]error{flow.EntityProject: &flow.Fault{Message: "Can't authenticate", Code: 102}},
	}
	dial, _ := dialer(rejected)
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrAuthFailed))
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestConnect_MissingCredentials(t *testing.T) {
	cache := NewCache(func(string, flow.Credentials) flow.Session {
		t.Fatal("dial must not be called for missing credentials")
		return nil
	}, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", flow.Credentials{Method: "script"})
	assert.True(t, perrors.Is(err, perrors.ErrAuthFailed))

	_, _, err = cache.Connect(context.Background(), "https://a", flow.Credentials{Method: "user", Login: "artist"})
	assert.True(t, perrors.Is(err, perrors.ErrAuthFailed))

	_, _, err = cache.Connect(context.Background(), "", scriptCreds())
	assert.True(t, perrors.Is(err, perrors.ErrInvalidRequest))
}

func TestCloseDropsConnections(t *testing.T) {
	dial, dials := dialer(liveFake(), liveFake())
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	require.NoError(t, cache.Close())
	assert.Equal(t, 0, cache.Len())

	_, cached, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, *dials)
}

func TestEvictDropsSingleIdentity(t *testing.T) {
	dial, dials := dialer(liveFake(), liveFake(), liveFake())
	cache := NewCache(dial, nil)

	_, _, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	userCreds := flow.Credentials{Method: "user", Login: "artist", Password: "pw"}
	_, _, err = cache.Connect(context.Background(), "https://a", userCreds)
	require.NoError(t, err)

	cache.Evict(IdentityFor("https://a", scriptCreds()))
	assert.Equal(t, 1, cache.Len())

	_, cached, err := cache.Connect(context.Background(), "https://a", scriptCreds())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, *dials)
}

func TestIdentityKey(t *testing.T) {
	id := IdentityFor("https://a", scriptCreds())
	assert.Equal(t, "https://a:script:shotpipe", id.Key())

	id = IdentityFor("https://a", flow.Credentials{Method: "user", Login: "artist", Password: "pw"})
	assert.Equal(t, "https://a:user:artist", id.Key())
}

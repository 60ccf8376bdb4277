package indexer

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookarr/bookarr/internal/models"
)

func TestGatewayQueryReturnsNilWhenUncachedAndNotForced(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://unused.invalid", APIKey: "k"})
	g := NewGateway(c, time.Minute)

	sources, err := g.Query(t.Context(), &models.Book{Title: "Quiet"}, nil, nil, false)
	require.NoError(t, err)
	require.Nil(t, sources)
}

func TestGatewayForceQueryPopulatesCacheForSubsequentReads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"guid":"g1","indexerId":1,"title":"Quiet","protocol":"torrent"}]`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k"})
	g := NewGateway(c, time.Minute)
	book := &models.Book{Title: "Quiet"}

	sources, err := g.ForceQuery(t.Context(), book, nil, nil)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, int32(1), hits.Load())

	cached, err := g.Query(t.Context(), book, nil, nil, false)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, int32(1), hits.Load())
}

func TestGatewayTransportErrorReturnsEmptyNotNil(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: 200 * time.Millisecond})
	g := NewGateway(c, time.Minute)

	sources, err := g.ForceQuery(t.Context(), &models.Book{Title: "Quiet"}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sources)
	require.Empty(t, sources)
}

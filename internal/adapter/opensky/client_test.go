package opensky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(WithBaseURL(srv.URL)), srv
}

func TestFetchRawStates(t *testing.T) {
	ctx := context.Background()

	t.Run("returns rows as provided", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/states/all", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"time":1700000000,"states":[
				["abc123","UAL123  ","United States",null,1700000000,-73.5,40.7,10000,false,250,90,null,null,null,"1200",false,0],
				["def456",null,"Canada",null,null,null,null,null,true,null,null,null,null,null,null,false,0]
			]}`))
		})
		defer srv.Close()

		rows, err := client.FetchRawStates(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "abc123", rows[0][0])
		assert.Equal(t, -73.5, rows[0][5])
		assert.Nil(t, rows[1][1], "nulls pass through untouched")
	})

	t.Run("missing states field means zero rows", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"time":1700000000}`))
		})
		defer srv.Close()

		rows, err := client.FetchRawStates(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("null states field means zero rows", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"time":1700000000,"states":null}`))
		})
		defer srv.Close()

		rows, err := client.FetchRawStates(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("non-2xx surfaces as NetworkError", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		defer srv.Close()

		_, err := client.FetchRawStates(ctx)
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusTooManyRequests, netErr.StatusCode)
	})

	t.Run("transport failure surfaces as NetworkError", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // refuse connections

		client := NewClient(WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: time.Second}))
		_, err := client.FetchRawStates(ctx)

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Zero(t, netErr.StatusCode)
	})

	t.Run("undecodable envelope surfaces as FeedFormatError", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"time":"not a number","states":{}}`))
		})
		defer srv.Close()

		_, err := client.FetchRawStates(ctx)
		var formatErr *FeedFormatError
		require.ErrorAs(t, err, &formatErr)

		var netErr *NetworkError
		assert.False(t, errors.As(err, &netErr))
	})

	t.Run("bearer token attached when configured", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"time":1,"states":[]}`))
		}))
		defer srv.Close()

		client := NewClient(WithBaseURL(srv.URL), WithToken("tok-123"))
		_, err := client.FetchRawStates(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-123", gotAuth)
	})
}

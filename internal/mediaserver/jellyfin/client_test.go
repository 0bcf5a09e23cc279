package jellyfin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/assets"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/log"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/mediaserver/jellyfin"
)

func TestFetchImageSendsAuthHeader(t *testing.T) {
	payload := []byte("image-bytes")
	var gotAuth, gotAccept string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Emby-Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write(payload)
	}))
	defer srv.Close()

	c := jellyfin.NewClient(srv.URL, "secret-token", log.NullLogger())
	got, err := c.FetchImage(context.Background(), srv.URL+"/Items/abc/Images/Primary")

	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "image/*", gotAccept)
	assert.Contains(t, gotAuth, `MediaBrowser Client="JellyView"`)
	assert.Contains(t, gotAuth, `Token="secret-token"`)
}

func TestFetchImageOmitsTokenWhenUnauthenticated(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Emby-Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := jellyfin.NewClient(srv.URL, "", log.NullLogger())
	_, err := c.FetchImage(context.Background(), srv.URL+"/Items/abc/Images/Primary")

	require.NoError(t, err)
	assert.NotContains(t, gotAuth, "Token=")
}

func TestFetchImageClassifiesHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := jellyfin.NewClient(srv.URL, "tok", log.NullLogger())
	_, err := c.FetchImage(context.Background(), srv.URL+"/Items/missing/Images/Primary")

	var statusErr *assets.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, assets.FailureNotFound, assets.ClassifyFailure(err))
}

func TestFetchImageClassifiesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	c := jellyfin.NewClient(url, "tok", log.NullLogger())
	_, err := c.FetchImage(context.Background(), url+"/Items/abc/Images/Primary")

	var netErr *assets.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, assets.FailureUnavailable, assets.ClassifyFailure(err))
}

func TestFetchImageHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := jellyfin.NewClient(srv.URL, "tok", log.NullLogger())
	_, err := c.FetchImage(ctx, srv.URL+"/Items/abc/Images/Primary")

	require.Error(t, err)
	var netErr *assets.NetworkError
	if errors.As(err, &netErr) {
		assert.ErrorIs(t, netErr.Err, context.Canceled)
	}
}

func TestDisconnectClearsContext(t *testing.T) {
	c := jellyfin.NewClient("https://media.example.com/", "tok", log.NullLogger())

	conn := c.Context()
	require.True(t, conn.Connected())
	assert.Equal(t, "https://media.example.com", conn.BaseURL, "trailing slash is trimmed")

	c.Disconnect()
	assert.False(t, c.Context().Connected())

	c.SetToken("fresh")
	assert.True(t, c.Context().Connected())
}

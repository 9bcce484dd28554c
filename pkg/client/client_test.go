package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootcforge/bootcforge/pkg/types"
)

func TestCreateBuildConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/builds", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))

		var req types.BuildRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !req.Overwrite {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"File already exists, do you want to overwrite?"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(types.BuildAccepted{ID: req.ID, ImagePath: "/out/image/disk.raw"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key")
	req := types.BuildRequest{ID: "fedora"}

	_, err := c.CreateBuild(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.EqualError(t, err, "API error (status 409): File already exists, do you want to overwrite?")

	req.Overwrite = true
	accepted, err := c.CreateBuild(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/out/image/disk.raw", accepted.ImagePath)
}

func TestQueryEscaping(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.RequestURI())
		switch r.URL.Path {
		case "/api/history/unique-id":
			w.Write([]byte(`{"id":"my build-1"}`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	id, err := c.UniqueBuildID(context.Background(), "my build")
	require.NoError(t, err)
	assert.Equal(t, "my build-1", id)

	_, err = c.Manifest(context.Background(), "quay.io/fedora/fedora-bootc:41", "remote")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/history/unique-id?name=my+build",
		"/api/images/manifest?ref=quay.io%2Ffedora%2Ffedora-bootc%3A41&engineId=remote",
	}, got)
}

func TestNoContentResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	assert.NoError(t, c.StopVM(context.Background()))
	assert.NoError(t, c.DeleteBuilds(context.Background(), []types.BuildRecord{{ID: "fedora"}}))
}

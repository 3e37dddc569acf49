package intents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/resolve", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "I want a human", req["text"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Resolution{Intent: IntentDisable})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL)
	res, err := r.Resolve(context.Background(), "I want a human")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, IntentDisable, res.Intent)
}

func TestResolveNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL)
	res, err := r.Resolve(context.Background(), "hello")
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestResolveEmptyIntentTreatedAsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Resolution{Answer: "orphan answer"})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL)
	res, err := r.Resolve(context.Background(), "hello")
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "hello")
	require.Error(t, err)
}

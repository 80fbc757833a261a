package policy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// echoServer answers every verify call with the uid_hash it was given.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{Result: req.UIDHash})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyReturnsVerdict(t *testing.T) {
	srv := echoServer(t)
	c := NewClient(srv.URL+"/", time.Second, quietLogger())

	for _, v := range []string{VerdictHonest, VerdictFraudulent, VerdictVM, VerdictAlreadyAssociated} {
		got, err := c.Verify(context.Background(), 1, v, 100)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVerifySendsPayload(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"result":"honest"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	_, err := c.Verify(context.Background(), 42, "abc", 7)
	require.NoError(t, err)
	assert.Equal(t, verifyRequest{PlayerID: 42, UIDHash: "abc", Session: 7}, got)
}

func TestVerifyTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond, quietLogger())
	start := time.Now()
	_, err := c.Verify(context.Background(), 1, "honest", 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestVerifyRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"result":"honest"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, quietLogger())
	got, err := c.Verify(context.Background(), 1, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, VerdictHonest, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestVerifyRejectsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, quietLogger())
	_, err := c.Verify(context.Background(), 1, "x", 1)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "403")
}

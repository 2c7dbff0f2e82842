package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_PostsJSONToTopic(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "garden-rain")
	require.NotNil(t, c)

	require.NoError(t, c.Send("Rain detected", "Garden rain gauge"))
	assert.Equal(t, "garden-rain", got["topic"])
	assert.Equal(t, "Rain detected", got["title"])
	assert.Equal(t, "Garden rain gauge", got["message"])
}

func TestSend_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "garden-rain")
	err := c.Send("Rain detected", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNew_EmptyTopicDisables(t *testing.T) {
	c := New("", "")
	assert.Nil(t, c)
	assert.NoError(t, c.Send("ignored", "ignored"))
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/prime-lattice/internal/clock"
	"github.com/talgya/prime-lattice/internal/engine"
	"github.com/talgya/prime-lattice/internal/phaselock"
	"github.com/talgya/prime-lattice/internal/resonance"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	field := resonance.NewField()
	require.NoError(t, field.Initialize([]resonance.Anchor{
		resonance.NewAnchor("Alpha", "origin", 2, 3, 5),
		resonance.NewAnchor("Beta", "carrier", 7, 11, 13),
		resonance.NewAnchor("Gamma", "bridge", 2, 7, 17),
	}))

	ctrl := phaselock.NewController(field.PrimeInventory(), phaselock.CanonicalFrequencies(), phaselock.Config{})

	var mu sync.RWMutex
	s := &Server{
		Field:    field,
		Ctrl:     ctrl,
		Eng:      engine.NewEngine(),
		Clock:    clock.NewReference(1, 0, 0),
		AdminKey: "secret",
		Mu:       &mu,
	}

	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, target any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := testServer(t)

	var status map[string]any
	resp := getJSON(t, ts.URL+"/api/v1/status", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Prime Lattice", status["name"])
	assert.Equal(t, float64(3), status["anchors"])
	assert.Equal(t, float64(7), status["oscillators"]) // primes 2..17
}

func TestResonanceEndpoint(t *testing.T) {
	_, ts := testServer(t)

	t.Run("known pair", func(t *testing.T) {
		var out map[string]any
		resp := getJSON(t, ts.URL+"/api/v1/resonance?a=Alpha&b=Gamma", &out)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		score := out["resonance"].(float64)
		assert.Greater(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})

	t.Run("unknown anchor is 404", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/api/v1/resonance?a=Alpha&b=Nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing params is 400", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/api/v1/resonance?a=Alpha", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAnchorDetailEndpoint(t *testing.T) {
	_, ts := testServer(t)

	var out struct {
		Measurement resonance.Measurement `json:"measurement"`
	}
	resp := getJSON(t, ts.URL+"/api/v1/anchor/Beta", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [3]int{7, 11, 13}, out.Measurement.Primes)
}

func TestCoherenceEndpoint(t *testing.T) {
	_, ts := testServer(t)

	var out struct {
		Primes []int       `json:"primes"`
		Matrix [][]float64 `json:"matrix"`
	}
	resp := getJSON(t, ts.URL+"/api/v1/sync/coherence", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Matrix, len(out.Primes))
	assert.Equal(t, 1.0, out.Matrix[0][0])
}

func TestReportEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/sync/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestAdminAuth(t *testing.T) {
	_, ts := testServer(t)

	t.Run("rejects missing token", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/sync/external", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts bearer token and zeroes phases", func(t *testing.T) {
		s, _ := testServer(t)
		ts2 := httptest.NewServer(s.routes())
		defer ts2.Close()

		for _, o := range s.Ctrl.Master().Oscillators() {
			o.Phase = 1.0
		}

		req, err := http.NewRequest("POST", ts2.URL+"/api/v1/sync/external", strings.NewReader("{}"))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		for _, o := range s.Ctrl.Master().Oscillators() {
			assert.Zero(t, o.Phase)
		}
	})

	t.Run("disabled without admin key", func(t *testing.T) {
		s, _ := testServer(t)
		s.AdminKey = ""
		ts2 := httptest.NewServer(s.routes())
		defer ts2.Close()

		resp, err := http.Post(ts2.URL+"/api/v1/sync/external", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestCreatePatternEndpoint(t *testing.T) {
	s, ts := testServer(t)

	body := `{"name":"triad","anchors":["Alpha","Beta","Gamma"]}`
	req, err := http.NewRequest("POST", ts.URL+"/api/v1/pattern", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Strength float64 `json:"strength"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Greater(t, out.Strength, 0.0)

	_, ok := s.Field.Pattern("triad")
	assert.True(t, ok)
}

func TestSamplesEndpointWithoutDB(t *testing.T) {
	// The fixture wires no database; the telemetry endpoint must refuse
	// rather than dereference a nil store.
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/sync/samples")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

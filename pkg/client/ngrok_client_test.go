package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NgrokBoot/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tunnelListJSON = `{
  "tunnels": [
    {
      "name": "command_line",
      "ID": "c2f4b7a1",
      "uri": "/api/tunnels/command_line",
      "public_url": "https://4f2a-203-0-113-7.ngrok-free.app",
      "proto": "https",
      "config": {"addr": "http://localhost:8080", "inspect": true},
      "metrics": {
        "conns": {"count": 12, "gauge": 1, "rate1": 0.5, "rate5": 0.25, "rate15": 0.1, "p50": 1500000, "p90": 2500000, "p95": 3000000, "p99": 9000000},
        "http": {"count": 40, "rate1": 1.5, "rate5": 1.25, "rate15": 1.1, "p50": 700000, "p90": 900000, "p95": 950000, "p99": 1200000}
      }
    },
    {
      "name": "ssh",
      "uri": "/api/tunnels/ssh",
      "public_url": "tcp://0.tcp.ngrok.io:17291",
      "proto": "tcp",
      "config": {"addr": "localhost:22", "inspect": false},
      "metrics": {"conns": {}, "http": {}}
    }
  ],
  "uri": "/api/tunnels"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*NgrokClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewNgrokClient(server.URL, WithTimeout(2*time.Second))
	require.NoError(t, err)
	return c, server
}

func TestListTunnels_DecodesAllFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tunnels", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, tunnelListJSON)
	})

	list, err := c.ListTunnels(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Tunnels, 2)
	assert.Equal(t, "/api/tunnels", list.URI)

	first := list.Tunnels[0]
	assert.Equal(t, "command_line", first.Name)
	assert.Equal(t, "c2f4b7a1", first.ID)
	assert.Equal(t, "https://4f2a-203-0-113-7.ngrok-free.app", first.PublicURL)
	assert.Equal(t, "https", first.Proto)
	assert.Equal(t, "http://localhost:8080", first.Config.Addr)
	assert.True(t, first.Config.Inspect)
	assert.Equal(t, int64(12), first.Metrics.Conns.Count)
	assert.Equal(t, int64(1), first.Metrics.Conns.Gauge)
	assert.Equal(t, 9000000.0, first.Metrics.Conns.P99)
	assert.Equal(t, int64(40), first.Metrics.HTTP.Count)
	assert.Equal(t, 1.25, first.Metrics.HTTP.Rate5)

	assert.Equal(t, "tcp", list.Tunnels[1].Proto)
	assert.Equal(t, "localhost:22", list.Tunnels[1].Config.Addr)

	// content fidelity: re-encoding yields the same document
	var want, got interface{}
	require.NoError(t, json.Unmarshal([]byte(tunnelListJSON), &want))
	encoded, err := json.Marshal(list)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, &got))
	assert.Equal(t, want.(map[string]interface{})["tunnels"].([]interface{})[0].(map[string]interface{})["metrics"],
		got.(map[string]interface{})["tunnels"].([]interface{})[0].(map[string]interface{})["metrics"])
}

func TestStartTunnel(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req api.StartTunnelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "web", req.Name)
		assert.Equal(t, "http", req.Proto)
		assert.Equal(t, "8080", req.Addr)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.Tunnel{
			Name:      req.Name,
			Proto:     "https",
			PublicURL: "https://web.ngrok.app",
			Config:    api.TunnelConfig{Addr: "http://localhost:8080"},
		})
	})

	tunnel, err := c.StartTunnel(context.Background(), &api.StartTunnelRequest{Name: "web", Proto: "http", Addr: "8080"})
	require.NoError(t, err)
	assert.Equal(t, "https://web.ngrok.app", tunnel.PublicURL)
}

func TestGetTunnel_EscapesName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tunnels/my tunnel", r.URL.Path)
		io.WriteString(w, `{"name":"my tunnel","proto":"tcp"}`)
	})
	tunnel, err := c.GetTunnel(context.Background(), "my tunnel")
	require.NoError(t, err)
	assert.Equal(t, "my tunnel", tunnel.Name)
}

func TestDelete_OnlyNoContentSucceeds(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{http.StatusNoContent, true},
		{http.StatusOK, false},
		{http.StatusAccepted, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tt.status)
			})
			err := c.StopTunnel(context.Background(), "web")
			if tt.success {
				assert.NoError(t, err)
				return
			}
			var serverErr *ServerError
			require.True(t, errors.As(err, &serverErr), "expected ServerError, got %v", err)
			assert.Equal(t, tt.status, serverErr.Status)
		})
	}
}

func TestServerError_UsesAgentMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error_code":100,"status_code":404,"msg":"Tunnel web not found","details":{}}`)
	})
	_, err := c.GetTunnel(context.Background(), "web")
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusNotFound, serverErr.Status)
	assert.Equal(t, "Tunnel web not found", serverErr.Text)
}

func TestDecodeStages(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		stage DecodeStage
	}{
		{"invalid utf8", []byte{0xff, 0xfe, '{', '}'}, StageUTF8},
		{"invalid json", []byte(`{"tunnels": [`), StageJSON},
		{"wrong shape", []byte(`{"tunnels": "none"}`), StageShape},
		{"array instead of object", []byte(`[1, 2, 3]`), StageShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(tt.body)
			})
			_, err := c.ListTunnels(context.Background())
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, tt.stage, decodeErr.Stage)
		})
	}
}

func TestTransportError_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	c, err := NewNgrokClient(addr)
	require.NoError(t, err)
	_, err = c.ListTunnels(context.Background())
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
	assert.Equal(t, http.MethodGet, transportErr.Method)
}

func TestTransportError_ShortBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		io.WriteString(w, `{"tunnels":[]}`)
	})
	_, err := c.ListTunnels(context.Background())
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
}

func TestReadBody_HugeContentLength(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1125899906842624")
		io.WriteString(w, `{}`)
	})
	assert.NotPanics(t, func() {
		_, err := c.ListTunnels(context.Background())
		var transportErr *TransportError
		assert.True(t, errors.As(err, &transportErr), "expected TransportError, got %v", err)
	})
}

func TestURLResolutionError(t *testing.T) {
	c, err := NewNgrokClient("http://127.0.0.1:4040")
	require.NoError(t, err)

	err = c.Get(context.Background(), "%zz", &api.TunnelList{})
	var resolveErr *URLResolutionError
	require.True(t, errors.As(err, &resolveErr), "expected URLResolutionError, got %v", err)
	assert.Equal(t, "%zz", resolveErr.Path)

	_, err = NewNgrokClient("127.0.0.1:4040")
	assert.True(t, errors.As(err, &resolveErr))
}

func TestResolveRelativePath(t *testing.T) {
	c, err := NewNgrokClient("http://127.0.0.1:4040")
	require.NoError(t, err)
	u, err := c.resolve("api/tunnels")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:4040/api/tunnels", u.String())
}

func TestResolveRejectsOtherHosts(t *testing.T) {
	c, err := NewNgrokClient("http://127.0.0.1:4040")
	require.NoError(t, err)

	for _, path := range []string{"http://other-host/api/tunnels", "//other-host/api/tunnels"} {
		err := c.Get(context.Background(), path, &api.TunnelList{})
		var resolveErr *URLResolutionError
		require.True(t, errors.As(err, &resolveErr), "%s: expected URLResolutionError, got %v", path, err)
		assert.Equal(t, path, resolveErr.Path)
	}
}

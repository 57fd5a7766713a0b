package api

// TunnelList is the body of GET /api/tunnels
type TunnelList struct {
	Tunnels []Tunnel `json:"tunnels"`
	URI     string   `json:"uri"`
}

// Tunnel is a single forwarding rule reported by the agent
type Tunnel struct {
	Name      string        `json:"name"`
	ID        string        `json:"ID,omitempty"`
	URI       string        `json:"uri"`
	PublicURL string        `json:"public_url"`
	Proto     string        `json:"proto"`
	Config    TunnelConfig  `json:"config"`
	Metrics   TunnelMetrics `json:"metrics"`
}

type TunnelConfig struct {
	Addr    string `json:"addr"`
	Inspect bool   `json:"inspect"`
}

// TunnelMetrics holds the rolling counters the agent keeps per tunnel
type TunnelMetrics struct {
	Conns ConnMetrics `json:"conns"`
	HTTP  HTTPMetrics `json:"http"`
}

// ConnMetrics latencies are in nanoseconds
type ConnMetrics struct {
	Count  int64   `json:"count"`
	Gauge  int64   `json:"gauge"`
	Rate1  float64 `json:"rate1"`
	Rate5  float64 `json:"rate5"`
	Rate15 float64 `json:"rate15"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// HTTPMetrics latencies are in nanoseconds
type HTTPMetrics struct {
	Count  int64   `json:"count"`
	Rate1  float64 `json:"rate1"`
	Rate5  float64 `json:"rate5"`
	Rate15 float64 `json:"rate15"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// StartTunnelRequest is the body of POST /api/tunnels
type StartTunnelRequest struct {
	Name       string   `json:"name"`
	Proto      string   `json:"proto"`
	Addr       string   `json:"addr"`
	Inspect    *bool    `json:"inspect,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	Subdomain  string   `json:"subdomain,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Auth       string   `json:"auth,omitempty"`
	HostHeader string   `json:"host_header,omitempty"`
	BindTLS    string   `json:"bind_tls,omitempty"`
	Schemes    []string `json:"schemes,omitempty"`
}

// APIErrorBody is what the agent returns alongside non-2xx statuses
type APIErrorBody struct {
	ErrorCode  int                    `json:"error_code"`
	StatusCode int                    `json:"status_code"`
	Msg        string                 `json:"msg"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

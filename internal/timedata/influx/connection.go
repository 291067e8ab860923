package influx

import (
	"net"
	"net/http"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Fixed connection timeouts. Not user-tunable per call, so worst-case
// latency is bounded uniformly for every writer and querier.
const (
	connectTimeout = 10 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// Connection owns the pooled clients to the time-series store, shared
// read/write across all merge workers and queriers. Precision is applied
// per client, so destinations declaring distinct precisions each get
// their own client over the shared HTTP transport. Safe for concurrent
// use.
type Connection struct {
	QueryAPI api.QueryAPI

	url        string
	token      string
	httpClient *http.Client

	mu        sync.Mutex
	clients   map[time.Duration]influxdb2.Client
	writeAPIs map[WriteParameters]api.WriteAPIBlocking
}

// clientFor returns the store client writing at the given precision,
// creating it on first use. Callers hold cn.mu.
func (cn *Connection) clientFor(precision time.Duration) influxdb2.Client {
	if client, ok := cn.clients[precision]; ok {
		return client
	}
	options := influxdb2.DefaultOptions().
		SetHTTPClient(cn.httpClient).
		SetPrecision(precision).
		SetUseGZip(true)
	client := influxdb2.NewClientWithOptions(cn.url, cn.token, options)
	cn.clients[precision] = client
	return client
}

// writeAPIFor returns the blocking write API for one destination, creating
// and caching it on first use.
func (cn *Connection) writeAPIFor(params WriteParameters) api.WriteAPIBlocking {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if writeAPI, ok := cn.writeAPIs[params]; ok {
		return writeAPI
	}
	writeAPI := cn.clientFor(params.Precision).WriteAPIBlocking(params.Org, params.Bucket)
	cn.writeAPIs[params] = writeAPI
	return writeAPI
}

// close releases every per-precision client.
func (cn *Connection) close() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	for _, client := range cn.clients {
		client.Close()
	}
}

// connection returns the lazily created store connection.
//
// The first caller pays the setup cost; all others observe the same
// instance. Guarded by connMu, so concurrent first-call races create
// exactly one underlying connection. After Close the connector fails fast.
func (c *Connector) connection() (*Connection, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	httpClient := &http.Client{
		Timeout: readTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	conn := &Connection{
		url:        c.cfg.URL,
		token:      c.cfg.Token,
		httpClient: httpClient,
		clients:    make(map[time.Duration]influxdb2.Client),
		writeAPIs:  make(map[WriteParameters]api.WriteAPIBlocking),
	}
	conn.mu.Lock()
	conn.QueryAPI = conn.clientFor(c.defaultParams.Precision).QueryAPI(c.cfg.Org)
	conn.mu.Unlock()

	c.conn = conn
	c.log.Info("store connection established", "url", c.cfg.URL, "org", c.cfg.Org)
	return c.conn, nil
}

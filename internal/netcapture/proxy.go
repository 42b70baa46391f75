// internal/netcapture/proxy.go
package netcapture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// AttachmentName is the report attachment that carries captured traffic.
const AttachmentName = "network"

// maxRecords bounds the in-memory capture; the oldest records go first.
const maxRecords = 10000

// Record is one request seen by the proxy. Status is 0 for tunnelled HTTPS
// connections, whose responses are opaque.
type Record struct {
	Start    time.Time
	Method   string
	URL      string
	Status   int
	Duration time.Duration
	Err      string
}

func (r Record) String() string {
	line := fmt.Sprintf("%s %s %s", r.Start.Format("2006-01-02 15:04:05.000"), r.Method, r.URL)
	switch {
	case r.Err != "":
		line += " error=" + r.Err
	case r.Status != 0:
		line += fmt.Sprintf(" %d %s", r.Status, r.Duration.Round(time.Millisecond))
	}
	return line
}

// Proxy is a recording forward proxy placed between the browser and the
// network. Plain HTTP is recorded with its status; HTTPS is tunnelled and
// recorded by host.
type Proxy struct {
	proxy    *goproxy.ProxyHttpServer
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger

	mu      sync.Mutex
	records []Record
}

// New builds a proxy. upstream, when non-empty, is a host:port every request
// is forwarded through.
func New(upstream string, logger *zap.Logger) (*Proxy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Proxy{proxy: goproxy.NewProxyHttpServer(), logger: logger.Named("netcapture")}

	transport := &http.Transport{
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if upstream != "" {
		u, err := url.Parse("http://" + upstream)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid upstream proxy %q", upstream)
		}
		transport.Proxy = http.ProxyURL(u)
		p.proxy.ConnectDial = p.proxy.NewConnectDialToProxy(u.String())
		p.logger.Info("Chaining through upstream proxy.", zap.String("upstream", upstream))
	}
	p.proxy.Tr = transport

	p.proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		p.add(Record{Start: time.Now(), Method: http.MethodConnect, URL: host})
		return goproxy.OkConnect, host
	}))
	p.proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		ctx.UserData = time.Now()
		return r, nil
	})
	p.proxy.OnResponse().DoFunc(p.handleResponse)
	return p, nil
}

func (p *Proxy) handleResponse(r *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	rec := Record{Start: time.Now(), URL: "unknown"}
	if start, ok := ctx.UserData.(time.Time); ok {
		rec.Start = start
		rec.Duration = time.Since(start)
	}
	if ctx.Req != nil {
		rec.Method = ctx.Req.Method
		if ctx.Req.URL != nil {
			rec.URL = ctx.Req.URL.String()
		}
	}

	if r == nil {
		msg := "unknown error"
		if ctx.Error != nil {
			msg = ctx.Error.Error()
		}
		rec.Err = msg
		p.add(rec)
		p.logger.Warn("Upstream request failed.", zap.String("url", rec.URL), zap.String("error", msg))

		status := http.StatusBadGateway
		var netErr net.Error
		if errors.As(ctx.Error, &netErr) && netErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		if ctx.Req == nil {
			return nil
		}
		return goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, status, "Proxy error: "+msg)
	}

	rec.Status = r.StatusCode
	p.add(rec)
	return r
}

func (p *Proxy) add(rec Record) {
	p.mu.Lock()
	p.records = append(p.records, rec)
	if over := len(p.records) - maxRecords; over > 0 {
		p.records = append(p.records[:0], p.records[over:]...)
	}
	p.mu.Unlock()
	p.logger.Debug("Request captured.", zap.String("method", rec.Method), zap.String("url", rec.URL), zap.Int("status", rec.Status))
}

// Start listens on addr (":0" picks a free port) and serves until ctx ends
// or Close is called. It returns the bound address.
func (p *Proxy) Start(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen for capture proxy: %w", err)
	}
	p.listener = ln
	p.server = &http.Server{Handler: p.proxy, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("Capture proxy stopped.", zap.Error(err))
		}
	}()
	context.AfterFunc(ctx, func() { _ = p.Close() })

	p.logger.Info("Capture proxy listening.", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Close stops the server. Later calls are no-ops.
func (p *Proxy) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the proxy for in-process serving.
func (p *Proxy) Handler() http.Handler { return p.proxy }

// Drain returns and clears the captured records, oldest first.
func (p *Proxy) Drain() []Record {
	p.mu.Lock()
	out := p.records
	p.records = nil
	p.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Summary drains the capture and renders one line per record.
func (p *Proxy) Summary() string {
	recs := p.Drain()
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

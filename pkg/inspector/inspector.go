// Package inspector provides an HTTP endpoint for inspecting live
// wrappers: GET /status returns every registered wrapper's stats, and
// GET /status?wrapper=<name> a single one.
package inspector

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/isowrap/pkg/isowrap"
)

// Inspector serves wrapper stats over fasthttp.
type Inspector struct {
	mu       sync.RWMutex
	wrappers map[string]*isowrap.Wrapper
	server   *fasthttp.Server
	ln       net.Listener
}

// New creates an empty inspector.
func New() *Inspector {
	i := &Inspector{
		wrappers: make(map[string]*isowrap.Wrapper),
	}
	i.server = &fasthttp.Server{
		Handler: i.handle,
		Name:    "isowrap-inspector",
	}
	return i
}

// Register makes a wrapper visible under its name. Re-registering a
// name replaces the previous wrapper.
func (i *Inspector) Register(w *isowrap.Wrapper) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.wrappers[w.Name()] = w
}

// Unregister removes a wrapper by name.
func (i *Inspector) Unregister(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.wrappers, name)
}

// ListenAndServe blocks serving on addr.
func (i *Inspector) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return i.Serve(ln)
}

// Serve blocks serving on an existing listener.
func (i *Inspector) Serve(ln net.Listener) error {
	i.mu.Lock()
	i.ln = ln
	i.mu.Unlock()
	return i.server.Serve(ln)
}

// Addr returns the bound listener address, if serving.
func (i *Inspector) Addr() net.Addr {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.ln == nil {
		return nil
	}
	return i.ln.Addr()
}

// Shutdown gracefully stops the server.
func (i *Inspector) Shutdown() error {
	return i.server.Shutdown()
}

func (i *Inspector) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/status":
		i.handleStatus(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (i *Inspector) handleStatus(ctx *fasthttp.RequestCtx) {
	name := string(ctx.QueryArgs().Peek("wrapper"))

	i.mu.RLock()
	var body interface{}
	if name != "" {
		w, ok := i.wrappers[name]
		if !ok {
			i.mu.RUnlock()
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		body = w.Stats()
	} else {
		all := make(map[string]isowrap.Stats, len(i.wrappers))
		for n, w := range i.wrappers {
			all[n] = w.Stats()
		}
		body = all
	}
	i.mu.RUnlock()

	data, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}

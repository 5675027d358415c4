package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/vaultbridge/importengine/internal/engineerr"
)

// HTTPTransport starts transfers over plain HTTP(S), writing the
// response body straight to Request.DownloadPath. It is the Transport
// this package's Manager drives in production; tests substitute their
// own instantaneous fake (see importpipeline's pipeline_test.go).
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport constructs an HTTPTransport. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client}
}

// Start issues the GET and hands back a Handle that reports bytes
// written so far; the copy itself runs on its own goroutine so Poll
// never blocks on network I/O.
func (t *HTTPTransport) Start(ctx context.Context, req Request) (Handle, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, engineerr.Servicef(err, "building download request for %s", req.URL)
	}
	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, engineerr.Servicef(err, "starting download for %s", req.URL)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, engineerr.Servicef(fmt.Errorf("status %s", resp.Status), "downloading %s", req.URL)
	}

	f, err := os.Create(req.DownloadPath)
	if err != nil {
		resp.Body.Close()
		return nil, engineerr.IOf(err, "creating download destination %s", req.DownloadPath)
	}

	h := &httpHandle{totalBytes: resp.ContentLength}
	go h.copy(resp.Body, f)
	return h, nil
}

type httpHandle struct {
	bytesDone  atomic.Int64
	totalBytes int64
	done       atomic.Bool
	err        atomic.Value // error
}

func (h *httpHandle) copy(body io.ReadCloser, f *os.File) {
	defer body.Close()
	defer f.Close()
	_, err := io.Copy(f, io.TeeReader(body, countingWriter{&h.bytesDone}))
	if err != nil {
		h.err.Store(err)
	}
	h.done.Store(true)
}

func (h *httpHandle) Poll(ctx context.Context) (PollResult, error) {
	var err error
	if v := h.err.Load(); v != nil {
		err = v.(error)
	}
	if err != nil {
		return PollResult{}, engineerr.Servicef(err, "reading download body")
	}
	return PollResult{
		BytesDone:  h.bytesDone.Load(),
		TotalBytes: h.totalBytes,
		Done:       h.done.Load(),
	}, nil
}

func (h *httpHandle) Release() {}

// countingWriter tallies bytes written to it without retaining them,
// used as the tee target for in-flight byte-count reporting.
type countingWriter struct {
	n *atomic.Int64
}

func (c countingWriter) Write(p []byte) (int, error) {
	c.n.Add(int64(len(p)))
	return len(p), nil
}

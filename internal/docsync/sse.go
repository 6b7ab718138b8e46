package docsync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/collabdesk/collabdesk/internal/api"
)

// maxSSELineBytes bounds one stream line; event payloads carry whole
// documents.
const maxSSELineBytes = 4 * 1024 * 1024

// SSEDialer opens the document service's server-sent-event subscription
// stream. Dialing follows the same fallback rule as the resolver: a
// transport-level dial failure against the gateway retries once against the
// direct document endpoint; an HTTP error status is passed through and never
// falls back.
type SSEDialer struct {
	endpoints  api.Endpoints
	httpClient *http.Client
}

func NewSSEDialer(endpoints api.Endpoints, httpClient *http.Client) *SSEDialer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SSEDialer{endpoints: endpoints, httpClient: httpClient}
}

func (d *SSEDialer) Dial(ctx context.Context, documentID int64) (Transport, error) {
	path := fmt.Sprintf("/documents/%d/subscribe", documentID)

	resp, gatewayErr := d.open(ctx, d.endpoints.GatewayBase()+path)
	if gatewayErr != nil {
		direct := d.endpoints.DirectBase(api.ServiceDocument)
		if direct == "" {
			return nil, &api.ServiceUnreachableError{Service: api.ServiceDocument, GatewayErr: gatewayErr}
		}
		var directErr error
		resp, directErr = d.open(ctx, direct+path)
		if directErr != nil {
			return nil, &api.ServiceUnreachableError{
				Service:    api.ServiceDocument,
				GatewayErr: gatewayErr,
				DirectErr:  directErr,
			}
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &api.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return newSSEStream(resp), nil
}

func (d *SSEDialer) open(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return d.httpClient.Do(req)
}

type sseStream struct {
	resp      *http.Response
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

func newSSEStream(resp *http.Response) *sseStream {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineBytes)
	return &sseStream{resp: resp, scanner: scanner}
}

// Recv reads lines until a blank-line dispatch per the SSE wire format.
// Cancellation is handled by Close, which closes the response body and
// unblocks the scanner.
func (s *sseStream) Recv(ctx context.Context) (Event, error) {
	var (
		name     string
		data     []string
		haveData bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if !haveData {
				name = ""
				continue
			}
			return Event{Name: name, Data: []byte(strings.Join(data, "\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := splitSSEField(line)
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
			haveData = true
		}
		// id and retry fields are ignored; the client neither resumes nor
		// auto-reconnects at this layer.
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	if ctx.Err() != nil {
		return Event{}, ctx.Err()
	}
	return Event{}, io.EOF
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.resp.Body.Close()
	})
	return nil
}

func splitSSEField(line string) (field, value string) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}

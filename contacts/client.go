package contacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	ds "github.com/cs414s24/contacts/datastores"
)

// RemoteError is a failure reported by a contacts server.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return "contacts: remote: " + e.Detail
	}
	return fmt.Sprintf("contacts: remote: %d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
}

// Client drives the contacts endpoints of a server. It offers the methods of
// [Book] so either can back a screen.
type Client struct {
	BaseURL    string // e.g. http://localhost:8888/api/contacts
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Dialer:     websocket.DefaultDialer,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		var problem struct {
			Detail string `json:"detail"`
		}
		isProblem := strings.HasPrefix(resp.Header.Get("Content-Type"), "application/problem+json")
		if isProblem {
			_ = json.NewDecoder(resp.Body).Decode(&problem)
		}
		// a 404 without the problem detail is a wrong URL, not a missing contact
		if resp.StatusCode == http.StatusNotFound && isProblem && problem.Detail == NotFoundDetail {
			return ErrNotFound
		}
		return &RemoteError{Status: resp.StatusCode, Detail: problem.Detail}
	case out != nil:
		return json.NewDecoder(resp.Body).Decode(out)
	default:
		return nil
	}
}

func idPath(id int64) string { return "/" + strconv.FormatInt(id, 10) }

func (c *Client) Add(ctx context.Context, contact Contact) (ds.DocumentID, error) {
	var created struct {
		DocumentID ds.DocumentID `json:"documentId"`
	}
	err := c.do(ctx, http.MethodPost, "/", contact, &created)
	return created.DocumentID, err
}

func (c *Client) List(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := c.do(ctx, http.MethodGet, "/", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *Client) Get(ctx context.Context, id int64) (Contact, error) {
	var contact Contact
	err := c.do(ctx, http.MethodGet, idPath(id), nil, &contact)
	return contact, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath(id), nil, nil)
}

// fields is the body of updates, which take the id from the path.
type fields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c *Client) Update(ctx context.Context, id int64, name, email string) error {
	return c.do(ctx, http.MethodPatch, idPath(id), fields{name, email}, nil)
}

func (c *Client) Replace(ctx context.Context, contact Contact) error {
	return c.do(ctx, http.MethodPut, idPath(contact.ID), fields{contact.Name, contact.Email}, nil)
}

// Watch reads snapshot frames from the server's websocket until ctx is done
// or the connection fails. A connection failure is delivered as a last
// snapshot carrying the error.
func (c *Client) Watch(ctx context.Context) (<-chan Snapshot, error) {
	u, err := url.Parse(c.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	out := make(chan Snapshot)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return
				}
				select {
				case out <- Snapshot{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- f.Snapshot():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

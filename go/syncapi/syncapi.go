// Package syncapi defines the delta-sync wire types exchanged between boxes
// and the central sync server, plus the HTTP client the boxes use.
package syncapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/twmsh/fy-admin/go/timefmt"
)

// Delta operations.
const (
	OpModify = 1
	OpDelete = 2
)

// Response status codes.
const (
	StatusOK          = 0
	StatusError       = 500
	StatusInvalidPara = 1
	StatusBizErr      = 2
)

// PersonFace is one enrolled face of a person: base64 feature, capture
// quality, and the engine-side face number.
type PersonFace struct {
	Fea     string  `json:"fea"`
	Quality float32 `json:"quality"`
	ID      string  `json:"id"`
}

type PersonInfo struct {
	UUID      string       `json:"uuid"`
	DbID      string       `json:"db_id"`
	Aggregate string       `json:"aggregate,omitempty"`
	Faces     []PersonFace `json:"faces"`
}

// Person is one row of the person delta stream.
type Person struct {
	ID         string       `json:"id"`
	UUID       string       `json:"uuid"`
	DbID       string       `json:"db_id"`
	Op         int8         `json:"op"`
	LastUpdate timefmt.Time `json:"last_update"`
	Detail     *PersonInfo  `json:"detail"`
}

// AddFace appends a face to the person detail, creating it when needed.
func (p *Person) AddFace(face PersonFace) {
	if p.Detail == nil {
		p.Detail = &PersonInfo{UUID: p.UUID, DbID: p.DbID}
	}
	p.Detail.Faces = append(p.Detail.Faces, face)
}

type CameraInfo struct {
	UUID   string `json:"uuid"`
	URL    string `json:"url"`
	Config string `json:"config"`
}

// Camera is one row of the camera delta stream. Type is the capture kind:
// 1 face, 2 vehicle, 3 both.
type Camera struct {
	ID         string       `json:"id"`
	UUID       string       `json:"uuid"`
	Op         int8         `json:"op"`
	LastUpdate timefmt.Time `json:"last_update"`
	Type       int64        `json:"type"`
	Detail     *CameraInfo  `json:"detail"`
}

// Db is one row of the feature-db delta stream.
type Db struct {
	ID         string       `json:"id"`
	UUID       string       `json:"uuid"`
	Op         int8         `json:"op"`
	LastUpdate timefmt.Time `json:"last_update"`
	Capacity   int32        `json:"capacity"`
}

// Response is the uniform envelope of every sync-server endpoint.
type Response[T any] struct {
	Status  int32        `json:"status"`
	Message string       `json:"message,omitempty"`
	TS      timefmt.Time `json:"ts"`
	Data    []T          `json:"data,omitempty"`
}

func (r *Response[T]) Empty() bool { return len(r.Data) == 0 }

// OK builds a success envelope carrying data.
func OK[T any](data []T) *Response[T] {
	return &Response[T]{Status: StatusOK, TS: timefmt.Now(), Data: data}
}

// Fail builds an error envelope.
func Fail[T any](status int32, message string) *Response[T] {
	return &Response[T]{Status: status, Message: message, TS: timefmt.Now()}
}

// Client fetches delta streams from the sync server.
type Client struct {
	client *http.Client
}

func NewClient() *Client {
	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 1,
			},
		},
	}
}

func (c *Client) FetchDbUpdated(rawURL, lastUpdate, hwID string) (*Response[Db], error) {
	return doGet[Db](c.client, rawURL, lastUpdate, hwID)
}

func (c *Client) FetchCameraUpdated(rawURL, lastUpdate, hwID string) (*Response[Camera], error) {
	return doGet[Camera](c.client, rawURL, lastUpdate, hwID)
}

func (c *Client) FetchPersonUpdated(rawURL, lastUpdate, hwID string) (*Response[Person], error) {
	return doGet[Person](c.client, rawURL, lastUpdate, hwID)
}

func doGet[T any](client *http.Client, rawURL, lastUpdate, hwID string) (*Response[T], error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing sync url %q: %w", rawURL, err)
	}
	var q = u.Query()
	q.Set("last_update", lastUpdate)
	q.Set("hw_id", hwID)
	u.RawQuery = q.Encode()

	resp, err := client.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: http status %d", u.Path, resp.StatusCode)
	}

	var res Response[T]
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", u.Path, err)
	}
	return &res, nil
}

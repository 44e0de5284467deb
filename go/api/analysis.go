package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// SourceConfig is the per-camera analyzer configuration. The top-level
// switches are typed; the produce/face/vehicle blocks are carried opaquely
// so that a config fetched from the platform round-trips unchanged.
type SourceConfig struct {
	EnableFace           bool   `json:"enable_face"`
	EnableVehicle        bool   `json:"enable_vehicle"`
	JpgEncodeThreshold   int64  `json:"jpg_encode_threshold"`
	Loop                 bool   `json:"loop"`
	Player               int64  `json:"player"`
	UploadURL            string `json:"upload_url"`
	DecodeResultQueueLen int64  `json:"decode_result_queue_size"`

	Produce json.RawMessage `json:"produce"`
	Face    json.RawMessage `json:"face"`
	Vehicle json.RawMessage `json:"vehicle"`

	LiveHeight int64 `json:"live_height"`
	LiveServer int64 `json:"live_server"`
	LiveWidth  int64 `json:"live_width"`
}

type CreateSourceRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
	ID   string `json:"id"`
}

type UpdateSourceRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type DeleteSourceRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type SourceID struct {
	ID string `json:"id"`
}

type GetSourcesRes struct {
	Code    int64      `json:"code"`
	Msg     string     `json:"msg"`
	Sources []SourceID `json:"sources"`
}

type GetSourceInfoRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`

	State          *int64        `json:"state"`
	URL            *string       `json:"url"`
	Config         *SourceConfig `json:"config"`
	LastActiveTime *int64        `json:"last_active_time"`
	Duration       *int64        `json:"duration"`
}

// AnalysisClient drives the video analyzer engine over JSON-RPC.
type AnalysisClient struct {
	url    string
	client *http.Client
}

func NewAnalysisClient(url string) *AnalysisClient {
	return &AnalysisClient{
		url:    url,
		client: newEngineHTTPClient(3 * time.Second),
	}
}

type createSourceReq struct {
	URL    string       `json:"url"`
	ID     string       `json:"id"`
	Config SourceConfig `json:"config"`
}

// CreateSource registers a camera stream. notifyURL overrides the config's
// upload_url so tracks come back to this process.
func (c *AnalysisClient) CreateSource(id, srcURL, notifyURL string, config SourceConfig) (*CreateSourceRes, error) {
	config.UploadURL = notifyURL
	var req = createSourceReq{URL: srcURL, ID: id, Config: config}
	var res CreateSourceRes
	if err := doCall(c.client, c.url, "create_source", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AnalysisClient) UpdateSource(id, srcURL, notifyURL string, config SourceConfig) (*UpdateSourceRes, error) {
	config.UploadURL = notifyURL
	var req = createSourceReq{URL: srcURL, ID: id, Config: config}
	var res UpdateSourceRes
	if err := doCall(c.client, c.url, "update_source", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AnalysisClient) DeleteSource(id string) (*DeleteSourceRes, error) {
	var req = struct {
		ID string `json:"id"`
	}{id}
	var res DeleteSourceRes
	if err := doCall(c.client, c.url, "delete_source", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AnalysisClient) GetSources() (*GetSourcesRes, error) {
	var res GetSourcesRes
	if err := doCall(c.client, c.url, "get_sources", &struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AnalysisClient) GetSourceInfo(id string) (*GetSourceInfoRes, error) {
	var req = struct {
		ID string `json:"id"`
	}{id}
	var res GetSourceInfoRes
	if err := doCall(c.client, c.url, "get_source_info", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

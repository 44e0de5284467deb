package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

var rpcID uint64

// RPCError is a JSON-RPC failure returned by an engine.
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error code:%d, msg:%s", e.Code, e.Message)
}

type rpcRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func newEngineHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConnsPerHost: 1,
		},
	}
}

// doCall posts a JSON-RPC 2.0 method call and decodes the result into out.
// req must marshal to a JSON object; it becomes the params map.
func doCall(client *http.Client, url, method string, req, out any) error {
	params, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	var call = rpcRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&rpcID, 1),
	}
	body, err := json.Marshal(&call)
	if err != nil {
		return fmt.Errorf("encoding %s call: %w", method, err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("posting %s: http status %d", method, resp.StatusCode)
	}

	var rpcRes rpcResponse
	if err = json.NewDecoder(resp.Body).Decode(&rpcRes); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcRes.Error != nil {
		return rpcRes.Error
	}
	if out == nil {
		return nil
	}
	if err = json.Unmarshal(rpcRes.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

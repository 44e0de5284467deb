package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(method string, params json.RawMessage) (any, *RPCError)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		require.Equal(t, "2.0", call.Jsonrpc)
		require.NotZero(t, call.ID)

		result, rpcErr := handle(call.Method, call.Params)
		var res = map[string]any{"jsonrpc": "2.0", "id": call.ID}
		if rpcErr != nil {
			res["error"] = rpcErr
		} else {
			res["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(res))
	}))
}

func TestSearchRoundTrip(t *testing.T) {
	var srv = rpcServer(t, func(method string, params json.RawMessage) (any, *RPCError) {
		require.Equal(t, "search", method)

		var req struct {
			Features  [][]FeatureQuality `json:"features"`
			Top       []int64            `json:"top"`
			Threshold []int64            `json:"threshold"`
			Db        []string           `json:"db"`
		}
		require.NoError(t, json.Unmarshal(params, &req))
		require.Len(t, req.Features, 1)
		require.Equal(t, []string{"db-1"}, req.Db)

		return SearchRes{
			Code: 0,
			Msg:  "ok",
			Persons: [][]SearchResPerson{
				{{ID: "p-1", Score: 98, Db: "db-1"}},
			},
		}, nil
	})
	defer srv.Close()

	var client = NewRecognitionClient(srv.URL)
	res, err := client.Search(
		[]string{"db-1"}, []int64{5}, []int64{80},
		[][]FeatureQuality{{{Feature: "Zm9v", Quality: 0.9}}},
	)
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Code)
	require.Len(t, res.Persons, 1)
	require.Equal(t, "p-1", res.Persons[0][0].ID)
}

func TestRPCFailureSurfacesError(t *testing.T) {
	var srv = rpcServer(t, func(method string, _ json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	defer srv.Close()

	var client = NewAnalysisClient(srv.URL)
	_, err := client.GetSources()
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, int64(-32601), rpcErr.Code)
}

func TestCreateSourceOverridesUploadURL(t *testing.T) {
	var srv = rpcServer(t, func(method string, params json.RawMessage) (any, *RPCError) {
		require.Equal(t, "create_source", method)
		var req createSourceReq
		require.NoError(t, json.Unmarshal(params, &req))
		require.Equal(t, "http://agent:7100/trackupload", req.Config.UploadURL)
		require.True(t, req.Config.EnableFace)
		return CreateSourceRes{Code: 0, Msg: "ok", ID: req.ID}, nil
	})
	defer srv.Close()

	var cfg = SourceConfig{EnableFace: true, UploadURL: "http://stale:1/old"}
	var client = NewAnalysisClient(srv.URL)
	res, err := client.CreateSource("cam-1", "rtsp://cam/stream", "http://agent:7100/trackupload", cfg)
	require.NoError(t, err)
	require.Equal(t, "cam-1", res.ID)
}

func TestCarNotifyHelpers(t *testing.T) {
	var text = "AB123"
	var n = CarNotify{
		PlateInfo: &PlateInfo{
			Text:      &text,
			PlateType: &PlateType{Value: "blue", Conf: 0.9},
			Bits: [][]PlateBit{
				{{Value: "A", Conf: 0.8}},
				{{Value: "B", Conf: 0.6}},
			},
		},
	}
	require.True(t, n.HasPlateInfo())
	require.False(t, n.HasPlateBinary())

	textGot, typeGot := n.PlateTuple()
	require.Equal(t, "AB123", textGot)
	require.Equal(t, "blue", typeGot)

	conf, ok := n.PlateConfidence()
	require.True(t, ok)
	require.InDelta(t, 0.7, conf, 1e-9)

	var empty = CarNotify{}
	_, ok = empty.PlateConfidence()
	require.False(t, ok)
	require.False(t, empty.HasPlateInfo())
}

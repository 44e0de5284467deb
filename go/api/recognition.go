package api

import (
	"net/http"
	"time"
)

type CreateDbRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
	ID   string `json:"id"`
}

type GetDbInfoRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`

	Volume *int64 `json:"volume"`
	Usage  *int64 `json:"usage"`
}

type DeleteDbRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type GetDbsRes struct {
	Code int64    `json:"code"`
	Msg  string   `json:"msg"`
	Dbs  []string `json:"dbs"`
}

// FeatureQuality pairs a base64 feature blob with its capture quality.
type FeatureQuality struct {
	Feature string  `json:"feature"`
	Quality float64 `json:"quality"`
}

type CreatePersonsResPerson struct {
	ID    string  `json:"id"`
	Faces []int64 `json:"faces"`
}

type CreatePersonsRes struct {
	Code    int64                    `json:"code"`
	Msg     string                   `json:"msg"`
	Persons []CreatePersonsResPerson `json:"persons"`
}

type DeletePersonRes struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

type SearchResPerson struct {
	ID    string `json:"id"`
	Score int64  `json:"score"`
	Db    string `json:"db"`
}

type SearchRes struct {
	Code    int64               `json:"code"`
	Msg     string              `json:"msg"`
	Persons [][]SearchResPerson `json:"persons"`
}

// RecognitionClient drives the face recognizer engine over JSON-RPC.
type RecognitionClient struct {
	url    string
	client *http.Client
}

func NewRecognitionClient(url string) *RecognitionClient {
	return &RecognitionClient{
		url:    url,
		client: newEngineHTTPClient(3 * time.Second),
	}
}

func (c *RecognitionClient) CreateDb(id string, volume int64) (*CreateDbRes, error) {
	var req = struct {
		ID     string `json:"id"`
		Volume int64  `json:"volume"`
	}{id, volume}
	var res CreateDbRes
	if err := doCall(c.client, c.url, "create_db", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RecognitionClient) GetDbInfo(id string) (*GetDbInfoRes, error) {
	var req = struct {
		ID string `json:"id"`
	}{id}
	var res GetDbInfoRes
	if err := doCall(c.client, c.url, "get_db_info", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RecognitionClient) DeleteDb(id string) (*DeleteDbRes, error) {
	var req = struct {
		ID string `json:"id"`
	}{id}
	var res DeleteDbRes
	if err := doCall(c.client, c.url, "delete_db", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RecognitionClient) GetDbs() (*GetDbsRes, error) {
	var res GetDbsRes
	if err := doCall(c.client, c.url, "get_dbs", &struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RecognitionClient) CreatePersons(db string, ids []string, features [][]FeatureQuality) (*CreatePersonsRes, error) {
	var req = struct {
		Features [][]FeatureQuality `json:"features"`
		Ids      []string           `json:"ids"`
		Db       string             `json:"db"`
	}{features, ids, db}
	var res CreatePersonsRes
	if err := doCall(c.client, c.url, "create_persons", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RecognitionClient) DeletePerson(db, id string) (*DeletePersonRes, error) {
	var req = struct {
		Db string `json:"db"`
		ID string `json:"id"`
	}{db, id}
	var res DeletePersonRes
	if err := doCall(c.client, c.url, "delete_person", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search queries dbs for each candidate feature list. top, threshold and db
// are parallel engine parameters; persons in the result is parallel to
// features.
func (c *RecognitionClient) Search(db []string, top, threshold []int64, features [][]FeatureQuality) (*SearchRes, error) {
	var req = struct {
		Features  [][]FeatureQuality `json:"features"`
		Top       []int64            `json:"top"`
		Threshold []int64            `json:"threshold"`
		Db        []string           `json:"db"`
	}{features, top, threshold, db}
	var res SearchRes
	if err := doCall(c.client, c.url, "search", &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Package uplink ships consolidated tracks from the box agent to the track
// warehouse as multipart uploads.
package uplink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/twmsh/fy-admin/go/ingress"
	"github.com/twmsh/fy-admin/go/tracker"
)

// Client posts tracks to a warehouse /trackupload endpoint.
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

func filePart(w *multipart.Writer, field, contentType string, data []byte) error {
	var hdr = make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field))
	hdr.Set("Content-Type", contentType)

	part, err := w.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("creating part %q: %w", field, err)
	}
	if _, err = part.Write(data); err != nil {
		return fmt.Errorf("writing part %q: %w", field, err)
	}
	return nil
}

// UploadFace sends one consolidated face track. The json field carries the
// wrapped item so matches and capture time survive the hop.
func (c *Client) UploadFace(url string, item *tracker.FaceItem) error {
	var body bytes.Buffer
	var w = multipart.NewWriter(&body)

	jsonContent, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding face track %s: %w", item.UUID, err)
	}
	if err = w.WriteField("json", string(jsonContent)); err != nil {
		return fmt.Errorf("writing json field: %w", err)
	}
	if err = w.WriteField("type", "facetrack"); err != nil {
		return fmt.Errorf("writing type field: %w", err)
	}

	if err = filePart(w, item.Notify.Background.ImageFile, "image/jpeg", item.Notify.Background.ImageBuf); err != nil {
		return err
	}
	for i := range item.Notify.Faces {
		var f = &item.Notify.Faces[i]
		if err = filePart(w, f.AlignedFile, "image/jpeg", f.AlignedBuf); err != nil {
			return err
		}
		if err = filePart(w, f.DisplayFile, "image/jpeg", f.DisplayBuf); err != nil {
			return err
		}
		if f.FeatureFile != nil && len(f.FeatureBuf) > 0 {
			if err = filePart(w, *f.FeatureFile, "application/octet-stream", f.FeatureBuf); err != nil {
				return err
			}
		}
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return c.post(url, w.FormDataContentType(), &body)
}

// UploadCar sends one consolidated vehicle track.
func (c *Client) UploadCar(url string, item *tracker.CarItem) error {
	var body bytes.Buffer
	var w = multipart.NewWriter(&body)

	jsonContent, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding car track %s: %w", item.UUID, err)
	}
	if err = w.WriteField("json", string(jsonContent)); err != nil {
		return fmt.Errorf("writing json field: %w", err)
	}
	if err = w.WriteField("type", "vehicletrack"); err != nil {
		return fmt.Errorf("writing type field: %w", err)
	}

	if err = filePart(w, item.Notify.Background.ImageFile, "image/jpeg", item.Notify.Background.ImageBuf); err != nil {
		return err
	}
	for i := range item.Notify.Vehicles {
		var v = &item.Notify.Vehicles[i]
		if err = filePart(w, v.ImageFile, "image/jpeg", v.ImageBuf); err != nil {
			return err
		}
	}
	if plate := item.Notify.PlateInfo; plate != nil {
		if plate.ImageFile != nil && len(plate.ImageBuf) > 0 {
			if err = filePart(w, *plate.ImageFile, "image/jpeg", plate.ImageBuf); err != nil {
				return err
			}
		}
		if plate.BinaryFile != nil && len(plate.BinaryBuf) > 0 {
			if err = filePart(w, *plate.BinaryFile, "image/jpeg", plate.BinaryBuf); err != nil {
				return err
			}
		}
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	return c.post(url, w.FormDataContentType(), &body)
}

func (c *Client) post(url, contentType string, body io.Reader) error {
	resp, err := c.client.Post(url, contentType, body)
	if err != nil {
		return fmt.Errorf("posting track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("posting track: http status %d", resp.StatusCode)
	}

	var res ingress.UploadRes
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decoding upload response: %w", err)
	}
	if res.Status != 0 {
		return fmt.Errorf("upload rejected: status %d, message %q", res.Status, res.Message)
	}
	return nil
}

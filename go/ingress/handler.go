package ingress

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/imaging"
	"github.com/twmsh/fy-admin/go/timefmt"
	"github.com/twmsh/fy-admin/go/tracker"
)

// UploadRes is the JSON body of every /trackupload response. Status 0 is
// success, anything else an error described by Message.
type UploadRes struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// Handler decodes track uploads and hands them to the per-kind sinks.
type Handler struct {
	FaceOut func(*tracker.FaceItem)
	CarOut  func(*tracker.CarItem)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var res = h.serve(r)
	if res.Status != 0 {
		log.WithFields(log.Fields{"client": r.RemoteAddr, "msg": res.Message}).
			Warn("track upload rejected")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (h *Handler) serve(r *http.Request) UploadRes {
	values, err := ParseForm(r, MaxUploadBytes)
	if err != nil {
		return UploadRes{Status: 1, Message: fmt.Sprintf("parse form: %v", err)}
	}

	trackType, ok := values.StringValue("type")
	if !ok {
		return UploadRes{Status: 1, Message: "field type not found"}
	}

	switch trackType {
	case "facetrack":
		return h.handleFace(values)
	case "vehicletrack":
		return h.handleCar(values)
	default:
		return UploadRes{Status: 1, Message: fmt.Sprintf("unknown type: %s", trackType)}
	}
}

// jpgFileValue looks a file part up and transcodes BMP content to JPEG.
func jpgFileValue(values *FormValues, name string) ([]byte, error) {
	buf, ok := values.FileValue(name)
	if !ok {
		return nil, fmt.Errorf("field %q not found", name)
	}
	out, err := imaging.EscapeBMP(buf)
	if err != nil {
		return nil, fmt.Errorf("transcoding %q: %w", name, err)
	}
	return out, nil
}

// faceEnvelope is the wrapped form an upstream agent sends: the bare notify
// plus pipeline metadata. Engines post the bare notify instead; both shapes
// are accepted.
type faceEnvelope struct {
	UUID    string                `json:"uuid"`
	Notify  *api.FaceNotify       `json:"notify"`
	TS      *timefmt.Time         `json:"ts"`
	Matches []tracker.MatchPerson `json:"matches"`
}

type carEnvelope struct {
	UUID   string         `json:"uuid"`
	Notify *api.CarNotify `json:"notify"`
	TS     *timefmt.Time  `json:"ts"`
}

func (h *Handler) handleFace(values *FormValues) UploadRes {
	var now = timefmt.Now()

	jsonStr, ok := values.StringValue("json")
	if !ok {
		return UploadRes{Status: 1, Message: "field json not found"}
	}

	var notify api.FaceNotify
	var uuid string
	var ts = now
	var matches []tracker.MatchPerson

	var env faceEnvelope
	if err := json.Unmarshal([]byte(jsonStr), &env); err == nil && env.Notify != nil {
		notify = *env.Notify
		uuid = env.UUID
		matches = env.Matches
		if env.TS != nil {
			ts = *env.TS
		}
	} else if err := json.Unmarshal([]byte(jsonStr), &notify); err != nil {
		return UploadRes{Status: 1, Message: fmt.Sprintf("json parse fail: %v", err)}
	}
	if uuid == "" {
		uuid = notify.ID
	}
	log.WithFields(log.Fields{"id": uuid, "index": notify.Index, "kind": "ft"}).
		Info("received track")

	bg, ok := values.FileValue(notify.Background.ImageFile)
	if !ok {
		return UploadRes{Status: 1, Message: fmt.Sprintf("field %q not found", notify.Background.ImageFile)}
	}
	notify.Background.ImageBuf = bg

	for i := range notify.Faces {
		var f = &notify.Faces[i]

		var err error
		if f.AlignedBuf, err = jpgFileValue(values, f.AlignedFile); err != nil {
			return UploadRes{Status: 1, Message: err.Error()}
		}
		if f.DisplayBuf, err = jpgFileValue(values, f.DisplayFile); err != nil {
			return UploadRes{Status: 1, Message: err.Error()}
		}

		if f.FeatureFile != nil && *f.FeatureFile != "" {
			buf, ok := values.FileValue(*f.FeatureFile)
			if !ok {
				return UploadRes{Status: 1, Message: fmt.Sprintf("field %q not found", *f.FeatureFile)}
			}
			f.FeatureBuf = buf
		} else {
			f.FeatureFile = nil
		}
	}

	h.FaceOut(&tracker.FaceItem{
		UUID:    uuid,
		Notify:  notify,
		TS:      ts,
		Matches: matches,
	})
	return UploadRes{Status: 0}
}

func (h *Handler) handleCar(values *FormValues) UploadRes {
	var now = timefmt.Now()

	jsonStr, ok := values.StringValue("json")
	if !ok {
		return UploadRes{Status: 1, Message: "field json not found"}
	}

	var notify api.CarNotify
	var uuid string
	var ts = now

	var env carEnvelope
	if err := json.Unmarshal([]byte(jsonStr), &env); err == nil && env.Notify != nil {
		notify = *env.Notify
		uuid = env.UUID
		if env.TS != nil {
			ts = *env.TS
		}
	} else if err := json.Unmarshal([]byte(jsonStr), &notify); err != nil {
		return UploadRes{Status: 1, Message: fmt.Sprintf("json parse fail: %v", err)}
	}
	if uuid == "" {
		uuid = notify.ID
	}
	log.WithFields(log.Fields{"id": uuid, "index": notify.Index, "kind": "ct"}).
		Info("received track")

	bg, ok := values.FileValue(notify.Background.ImageFile)
	if !ok {
		return UploadRes{Status: 1, Message: fmt.Sprintf("field %q not found", notify.Background.ImageFile)}
	}
	notify.Background.ImageBuf = bg

	for i := range notify.Vehicles {
		var err error
		if notify.Vehicles[i].ImageBuf, err = jpgFileValue(values, notify.Vehicles[i].ImageFile); err != nil {
			return UploadRes{Status: 1, Message: err.Error()}
		}
	}

	if notify.HasPlateInfo() {
		var plate = notify.PlateInfo
		if plate.ImageFile != nil {
			buf, err := jpgFileValue(values, *plate.ImageFile)
			if err != nil {
				return UploadRes{Status: 1, Message: err.Error()}
			}
			plate.ImageBuf = buf
		} else {
			log.WithField("id", notify.ID).Error("plate text without plate image")
		}
	}

	if notify.HasPlateBinary() {
		var plate = notify.PlateInfo
		buf, err := jpgFileValue(values, *plate.BinaryFile)
		if err != nil {
			return UploadRes{Status: 1, Message: err.Error()}
		}
		plate.BinaryBuf = buf
	}

	h.CarOut(&tracker.CarItem{
		UUID:   uuid,
		Notify: notify,
		TS:     ts,
	})
	return UploadRes{Status: 0}
}

// Package warehouse persists consolidated tracks: imagery to object
// storage, rows to MySQL, and the full records to the message broker.
package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/twmsh/fy-admin/go/tracker"
)

// Facetrack is one row of fy_facetrack.
type Facetrack struct {
	ID         int64
	UUID       string
	CameraUUID string
	// ImgIds and FeatureIds are "index:quality" lists, 1-based.
	ImgIds     string
	FeatureIds string
	Gender     int16
	Age        int16
	Glasses    int16
	// MostPersons is the "uuid:score" list of recognizer hits, best first.
	MostPersons string
	CaptureTime time.Time
	CreateTime  time.Time
}

// Cartrack is one row of fy_cartrack.
type Cartrack struct {
	ID         int64
	UUID       string
	CameraUUID string
	ImgIds     string

	PlateJudged   int16
	VehicleJudged int16
	MoveDirect    int16
	CarDirect     string

	PlateContent    string
	PlateConfidence *float32
	PlateType       string

	CarColor     string
	CarBrand     string
	CarTopSeries string
	CarSeries    string
	CarTopType   string
	CarMidType   string

	CaptureTime time.Time
	CreateTime  time.Time
}

// FacetrackFromItem flattens a consolidated face track into its row.
func FacetrackFromItem(item *tracker.FaceItem) Facetrack {
	var now = time.Now()

	var gender, age, glasses int16
	if props := item.Notify.Props; props != nil {
		gender = int16(props.Gender)
		age = int16(props.Age)
		glasses = int16(props.Glasses)
	}

	var imgList, feaList []string
	for i := range item.Notify.Faces {
		var f = &item.Notify.Faces[i]
		imgList = append(imgList, fmt.Sprintf("%d:%v", i+1, f.Quality))
		if f.FeatureFile != nil && *f.FeatureFile != "" {
			feaList = append(feaList, fmt.Sprintf("%d:%v", i+1, f.Quality))
		}
	}

	var matchList []string
	for _, m := range item.Matches {
		matchList = append(matchList, fmt.Sprintf("%s:%d", m.UUID, m.Score))
	}

	return Facetrack{
		UUID:        item.UUID,
		CameraUUID:  item.Notify.Source,
		ImgIds:      strings.Join(imgList, ","),
		FeatureIds:  strings.Join(feaList, ","),
		Gender:      gender,
		Age:         age,
		Glasses:     glasses,
		MostPersons: strings.Join(matchList, ","),
		CaptureTime: item.TS.Time,
		CreateTime:  now,
	}
}

// CartrackFromItem flattens a consolidated vehicle track into its row.
func CartrackFromItem(item *tracker.CarItem) Cartrack {
	var now = time.Now()

	var imgList []string
	for i := range item.Notify.Vehicles {
		imgList = append(imgList, fmt.Sprintf("%d:%v", i+1, 1.0))
	}

	var plateJudged, vehicleJudged int16
	if item.Notify.HasPlateInfo() {
		plateJudged = 1
	}
	if item.Notify.HasPropsInfo() {
		vehicleJudged = 1
	}

	var plateContent, plateType = item.Notify.PlateTuple()
	var props = item.Notify.PropsTuple()

	var plateConfidence *float32
	if conf, ok := item.Notify.PlateConfidence(); ok {
		var f = float32(conf)
		plateConfidence = &f
	}

	return Cartrack{
		UUID:            item.UUID,
		CameraUUID:      item.Notify.Source,
		ImgIds:          strings.Join(imgList, ","),
		PlateJudged:     plateJudged,
		VehicleJudged:   vehicleJudged,
		MoveDirect:      int16(props.MoveDirection),
		CarDirect:       props.Direction,
		PlateContent:    plateContent,
		PlateConfidence: plateConfidence,
		PlateType:       plateType,
		CarColor:        props.Color,
		CarBrand:        props.Brand,
		CarTopSeries:    props.TopSeries,
		CarSeries:       props.Series,
		CarTopType:      props.TopType,
		CarMidType:      props.MidType,
		CaptureTime:     item.TS.Time,
		CreateTime:      now,
	}
}

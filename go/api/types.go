// Package api speaks the JSON-RPC protocol of the on-box video analyzer and
// face recognizer engines, and defines the track notify payloads both engines
// POST back to the agent.
package api

type Rect struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	W int64 `json:"w"`
	H int64 `json:"h"`
}

type Position struct {
	End           int64 `json:"end"`
	EndFrame      int64 `json:"end_frame"`
	EndRealTime   int64 `json:"end_real_time"`
	Start         int64 `json:"start"`
	StartFrame    int64 `json:"start_frame"`
	StartRealTime int64 `json:"start_real_time"`
}

type FaceProps struct {
	Age           int64 `json:"age"`
	Gender        int64 `json:"gender"`
	Glasses       int64 `json:"glasses"`
	MoveDirection int64 `json:"move_direction"`
}

type Trip struct {
	X        *int64 `json:"x"`
	Y        *int64 `json:"y"`
	W        *int64 `json:"w"`
	H        *int64 `json:"h"`
	RealTime *int64 `json:"real_time"`
	Pts      *int64 `json:"pts"`
}

// Background is the full-frame snapshot attached to a notify. ImageBuf holds
// the decoded multipart file content and never travels as JSON.
type Background struct {
	FrameNum    int64   `json:"frame_num"`
	Height      int64   `json:"height"`
	Width       int64   `json:"width"`
	Image       *string `json:"image"`
	ImageFile   string  `json:"image_file"`
	Rect        Rect    `json:"rect"`
	VideoWidth  int64   `json:"video_width"`
	VideoHeight int64   `json:"video_height"`

	ImageBuf []byte `json:"-"`
}

type Face struct {
	Aligned     *string    `json:"aligned"`
	AlignedFile string     `json:"aligned_file"`
	Angles      [3]float64 `json:"angles"`
	Display     *string    `json:"display"`
	DisplayFile string     `json:"display_file"`
	FeatureFile *string    `json:"feature_file"`
	FrameNum    int64      `json:"frame_num"`
	Quality     float64    `json:"quality"`
	Rect        Rect       `json:"rect"`

	AlignedBuf []byte `json:"-"`
	DisplayBuf []byte `json:"-"`
	FeatureBuf []byte `json:"-"`
}

// HasFeature reports whether the face carries an extracted feature blob.
func (f *Face) HasFeature() bool {
	return f.FeatureFile != nil && *f.FeatureFile != ""
}

// FaceNotify is the face-track payload POSTed by the analyzer.
type FaceNotify struct {
	Background Background `json:"background"`
	Faces      []Face     `json:"faces"`
	ID         string     `json:"id"`
	Index      int64      `json:"index"`
	Position   Position   `json:"position"`
	Props      *FaceProps `json:"props"`
	Source     string     `json:"source"`
	Trip       *Trip      `json:"trip"`
	Version    string     `json:"version"`
}

func (n *FaceNotify) HasTripInfo() bool {
	return n.Trip != nil && n.Trip.W != nil
}

type Vehicle struct {
	Image     *string `json:"image"`
	ImageFile string  `json:"image_file"`
	FrameNum  int64   `json:"frame_num"`
	Rect      Rect    `json:"rect"`

	ImageBuf []byte `json:"-"`
}

type PlateType struct {
	Value string  `json:"value"`
	Conf  float64 `json:"conf"`
}

type PlateBit struct {
	Value string  `json:"value"`
	Conf  float64 `json:"conf"`
}

type PlateInfo struct {
	BinaryFile *string      `json:"binary_file"`
	Text       *string      `json:"text"`
	Image      *string      `json:"image"`
	ImageFile  *string      `json:"image_file"`
	PlateType  *PlateType   `json:"type"`
	Bits       [][]PlateBit `json:"bits"`

	ImageBuf  []byte `json:"-"`
	BinaryBuf []byte `json:"-"`
}

type ScoreValue struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

type CarProps struct {
	MoveDirection *int64       `json:"move_direction"`
	Brand         []ScoreValue `json:"brand"`
	Direction     []ScoreValue `json:"direction"`
	Color         []ScoreValue `json:"color"`
	MidType       []ScoreValue `json:"mid_type"`
	Series        []ScoreValue `json:"series"`
	TopSeries     []ScoreValue `json:"top_series"`
	TopType       []ScoreValue `json:"top_type"`
}

// CarNotify is the vehicle-track payload POSTed by the analyzer.
type CarNotify struct {
	ID         string     `json:"id"`
	Index      int64      `json:"index"`
	Source     string     `json:"source"`
	Vehicles   []Vehicle  `json:"vehicles"`
	PlateInfo  *PlateInfo `json:"plate_info"`
	Background Background `json:"background"`
	Position   Position   `json:"position"`
	Trip       *Trip      `json:"trip"`
	Props      *CarProps  `json:"props"`
	Version    string     `json:"version"`
}

// PlateTuple returns the plate text and plate type, either possibly empty.
func (n *CarNotify) PlateTuple() (text, plateType string) {
	if n.PlateInfo == nil {
		return "", ""
	}
	if n.PlateInfo.Text != nil {
		text = *n.PlateInfo.Text
	}
	if n.PlateInfo.PlateType != nil {
		plateType = n.PlateInfo.PlateType.Value
	}
	return text, plateType
}

// CarPropsTuple carries the flattened vehicle attributes: movement direction
// plus the top candidate of each classified property.
type CarPropsTuple struct {
	MoveDirection int32
	Direction     string
	Color         string
	Brand         string
	TopSeries     string
	Series        string
	TopType       string
	MidType       string
}

func topValue(list []ScoreValue) string {
	if len(list) == 0 {
		return ""
	}
	return list[0].Value
}

func (n *CarNotify) PropsTuple() CarPropsTuple {
	var t CarPropsTuple
	if n.Props == nil {
		return t
	}
	if n.Props.MoveDirection != nil {
		t.MoveDirection = int32(*n.Props.MoveDirection)
	}
	t.Direction = topValue(n.Props.Direction)
	t.Color = topValue(n.Props.Color)
	t.Brand = topValue(n.Props.Brand)
	t.TopSeries = topValue(n.Props.TopSeries)
	t.Series = topValue(n.Props.Series)
	t.TopType = topValue(n.Props.TopType)
	t.MidType = topValue(n.Props.MidType)
	return t
}

// HasPlateInfo reports whether a non-empty plate number was read.
func (n *CarNotify) HasPlateInfo() bool {
	return n.PlateInfo != nil && n.PlateInfo.Text != nil && *n.PlateInfo.Text != ""
}

// HasPlateBinary reports whether the plate binarization image is attached.
func (n *CarNotify) HasPlateBinary() bool {
	return n.PlateInfo != nil && n.PlateInfo.BinaryFile != nil && *n.PlateInfo.BinaryFile != ""
}

func (n *CarNotify) HasPropsInfo() bool {
	return n.Props != nil && n.Props.Color != nil
}

func (n *CarNotify) HasTripInfo() bool {
	return n.Trip != nil && n.Trip.W != nil
}

// PlateConfidence averages the confidence of the top candidate of every
// plate bit. Returns false when no bits were recognized.
func (n *CarNotify) PlateConfidence() (float64, bool) {
	if n.PlateInfo == nil || len(n.PlateInfo.Bits) == 0 {
		return 0, false
	}
	var amount float64
	var count int
	for _, bit := range n.PlateInfo.Bits {
		if len(bit) > 0 {
			amount += bit[0].Conf
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return amount / float64(count), true
}

package tracking

const (
	KeypointLeftHip       = "left_hip"
	KeypointRightHip      = "right_hip"
	KeypointLeftShoulder  = "left_shoulder"
	KeypointRightShoulder = "right_shoulder"
)

// Keypoint is a named body landmark as produced by the pose estimation model.
// Coordinates are in screen space: lower Y means physically higher.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// PoseSample is a single pose estimate for one frame.
type PoseSample struct {
	Keypoints []Keypoint `json:"keypoints"`
}

func (p PoseSample) Find(name string) (Keypoint, bool) {
	for _, kp := range p.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// CenterY returns the midpoint between the hip midline and the shoulder midline.
// ok is false when any of the four required keypoints is missing.
func (p PoseSample) CenterY() (_ float64, ok bool) {
	leftHip, ok := p.Find(KeypointLeftHip)
	if !ok {
		return 0, false
	}
	rightHip, ok := p.Find(KeypointRightHip)
	if !ok {
		return 0, false
	}
	leftShoulder, ok := p.Find(KeypointLeftShoulder)
	if !ok {
		return 0, false
	}
	rightShoulder, ok := p.Find(KeypointRightShoulder)
	if !ok {
		return 0, false
	}

	avgHipY := (leftHip.Y + rightHip.Y) / 2
	avgShoulderY := (leftShoulder.Y + rightShoulder.Y) / 2
	return (avgHipY + avgShoulderY) / 2, true
}

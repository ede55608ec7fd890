package frame

type MotionVector struct {
	Row    int16
	Column int16
}

// ReferenceInfo holds the motion field a frame leaves behind for temporal
// motion vector projection. The grids are at half the 4x4 resolution (8x8).
type ReferenceInfo struct {
	OrderHint                 [NumReferenceFrameTypes]uint8
	MotionFieldReferenceFrame Array2D[ReferenceFrameType]
	MotionFieldMV             Array2D[MotionVector]
}

func (r *ReferenceInfo) Reset(rows, columns int) error {
	if err := r.MotionFieldReferenceFrame.Reset(rows, columns); err != nil {
		return err
	}
	return r.MotionFieldMV.Reset(rows, columns)
}

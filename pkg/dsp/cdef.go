package dsp

const (
	// CdefBorder is how many samples around a block the filter reads.
	CdefBorder = 2
	// CdefLargeValue marks a sample outside the frame. The filter skips it.
	CdefLargeValue = 0x4000
)

// cdefDirections holds the (dy, dx) offsets of the two taps along each of
// the eight directions.
var cdefDirections = [8][2][2]int{
	{{-1, 1}, {-2, 2}},
	{{0, 1}, {-1, 2}},
	{{0, 1}, {0, 2}},
	{{0, 1}, {1, 2}},
	{{1, 1}, {2, 2}},
	{{1, 0}, {2, 1}},
	{{1, 0}, {2, 0}},
	{{1, 0}, {2, -1}},
}

var (
	cdefPrimaryTaps   = [2][2]int{{4, 2}, {3, 3}}
	cdefSecondaryTaps = [2]int{2, 1}
)

// 840 / (i + 1)
var divisionTable = [8]int{840, 420, 280, 210, 168, 140, 120, 105}

type pixel interface {
	~uint8 | ~uint16
}

func floorLog2(n int) int {
	l := -1
	for n > 0 {
		n >>= 1
		l++
	}
	return l
}

func cdefDirection8(src []uint8, off, stride int) (int, int) {
	return cdefDirection(src, off, stride, 8)
}

func cdefDirection[T pixel](src []T, off, stride, bitdepth int) (int, int) {
	var cost [8]int
	var partial [8][15]int
	shift := bitdepth - 8
	for i := 0; i < 8; i++ {
		row := src[off+i*stride : off+i*stride+8]
		for j := 0; j < 8; j++ {
			x := int(row[j])>>shift - 128
			partial[0][i+j] += x
			partial[1][i+j/2] += x
			partial[2][i] += x
			partial[3][3+i-j/2] += x
			partial[4][7+i-j] += x
			partial[5][3-i/2+j] += x
			partial[6][j] += x
			partial[7][i/2+j] += x
		}
	}

	for i := 0; i < 8; i++ {
		cost[2] += partial[2][i] * partial[2][i]
		cost[6] += partial[6][i] * partial[6][i]
	}
	cost[2] *= divisionTable[7]
	cost[6] *= divisionTable[7]
	for i := 0; i < 7; i++ {
		cost[0] += (partial[0][i]*partial[0][i] + partial[0][14-i]*partial[0][14-i]) * divisionTable[i]
		cost[4] += (partial[4][i]*partial[4][i] + partial[4][14-i]*partial[4][14-i]) * divisionTable[i]
	}
	cost[0] += partial[0][7] * partial[0][7] * divisionTable[7]
	cost[4] += partial[4][7] * partial[4][7] * divisionTable[7]
	for i := 1; i < 8; i += 2 {
		for j := 0; j < 5; j++ {
			cost[i] += partial[i][3+j] * partial[i][3+j]
		}
		cost[i] *= divisionTable[7]
		for j := 0; j < 3; j++ {
			cost[i] += (partial[i][j]*partial[i][j] + partial[i][10-j]*partial[i][10-j]) * divisionTable[2*j+1]
		}
	}

	bestCost, direction := 0, 0
	for i, c := range cost {
		if c > bestCost {
			bestCost = c
			direction = i
		}
	}
	return direction, (bestCost - cost[(direction+4)&7]) >> 10
}

// constrain limits a neighbour difference so that large steps (edges) pull
// less than small ones.
func constrain(diff, threshold, damping int) int {
	if threshold == 0 {
		return 0
	}
	magnitude := diff
	if magnitude < 0 {
		magnitude = -magnitude
	}
	limit := threshold - magnitude>>damping
	if limit < 0 {
		limit = 0
	}
	if magnitude > limit {
		magnitude = limit
	}
	if diff < 0 {
		return -magnitude
	}
	return magnitude
}

func cdefFilter8(src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
	dst []uint8, dstOff, dstStride int) {
	cdefFilter(src, srcOff, srcStride, width, height, primary, secondary, damping, direction,
		dst, dstOff, dstStride, 8)
}

func cdefFilter[T pixel](src []uint16, srcOff, srcStride, width, height, primary, secondary, damping, direction int,
	dst []T, dstOff, dstStride, bitdepth int) {
	coeffShift := bitdepth - 8
	primaryShift, secondaryShift := 0, 0
	if primary > 0 {
		primaryShift = max(0, damping-floorLog2(primary))
	}
	if secondary > 0 {
		secondaryShift = max(0, damping-floorLog2(secondary))
	}
	primaryTaps := cdefPrimaryTaps[(primary>>coeffShift)&1]
	secondaryDirections := [2]int{(direction + 6) & 7, (direction + 2) & 7}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			center := srcOff + y*srcStride + x
			value := int(src[center])
			minValue, maxValue := value, value
			sum := 0
			for k := 0; k < 2; k++ {
				for _, sign := range [2]int{-1, 1} {
					if primary > 0 {
						tap := cdefDirections[direction][k]
						neighbour := int(src[center+sign*(tap[0]*srcStride+tap[1])])
						if neighbour != CdefLargeValue {
							sum += constrain(neighbour-value, primary, primaryShift) * primaryTaps[k]
							minValue = min(minValue, neighbour)
							maxValue = max(maxValue, neighbour)
						}
					}
					if secondary > 0 {
						for _, d := range secondaryDirections {
							tap := cdefDirections[d][k]
							neighbour := int(src[center+sign*(tap[0]*srcStride+tap[1])])
							if neighbour != CdefLargeValue {
								sum += constrain(neighbour-value, secondary, secondaryShift) * cdefSecondaryTaps[k]
								minValue = min(minValue, neighbour)
								maxValue = max(maxValue, neighbour)
							}
						}
					}
				}
			}
			rounding := 8
			if sum < 0 {
				rounding = 7
			}
			filtered := value + (sum+rounding)>>4
			dst[dstOff+y*dstStride+x] = T(min(max(filtered, minValue), maxValue))
		}
	}
}

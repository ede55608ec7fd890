package frame

const (
	MaxSegments       = 8
	SegmentFeatureMax = 8
	// NumGlobalMotionParams is the size of a warp model parameter set.
	NumGlobalMotionParams = 6
	// DefaultStrideAlignment is passed to the size-changed callback.
	DefaultStrideAlignment = 16
)

type ImageFormat int

const (
	ImageFormatYUV420 ImageFormat = iota
	ImageFormatYUV422
	ImageFormatYUV444
	ImageFormatMonochrome400
)

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatYUV420:
		return "yuv420"
	case ImageFormatYUV422:
		return "yuv422"
	case ImageFormatYUV444:
		return "yuv444"
	case ImageFormatMonochrome400:
		return "monochrome400"
	default:
		return "unknown"
	}
}

// ComposeImageFormat maps a subsampling configuration onto an ImageFormat.
func ComposeImageFormat(monochrome bool, subsamplingX, subsamplingY int) ImageFormat {
	switch {
	case monochrome:
		return ImageFormatMonochrome400
	case subsamplingX == 0:
		return ImageFormatYUV444
	case subsamplingY == 0:
		return ImageFormatYUV422
	default:
		return ImageFormatYUV420
	}
}

// Borders are counted in luma samples.
type Borders struct {
	Left, Right, Top, Bottom int
}

func UniformBorders(n int) Borders {
	return Borders{Left: n, Right: n, Top: n, Bottom: n}
}

type ReferenceFrameType int8

const (
	ReferenceFrameNone ReferenceFrameType = iota - 1
	ReferenceFrameIntra
	ReferenceFrameLast
	ReferenceFrameLast2
	ReferenceFrameLast3
	ReferenceFrameGolden
	ReferenceFrameBackward
	ReferenceFrameAlternate2
	ReferenceFrameAlternate

	NumReferenceFrameTypes      = int(ReferenceFrameAlternate) + 1
	NumInterReferenceFrameTypes = int(ReferenceFrameAlternate - ReferenceFrameLast + 1)
)

type FrameType int

const (
	FrameTypeKey FrameType = iota
	FrameTypeInter
	FrameTypeIntraOnly
	FrameTypeSwitch
)

func IsIntraFrame(t FrameType) bool {
	return t == FrameTypeKey || t == FrameTypeIntraOnly
}

type FrameState int

const (
	FrameStateUnknown FrameState = iota
	FrameStateStarted
	FrameStateParsed
	FrameStateDecoded
)

func (s FrameState) String() string {
	switch s {
	case FrameStateUnknown:
		return "UNKNOWN"
	case FrameStateStarted:
		return "STARTED"
	case FrameStateParsed:
		return "PARSED"
	case FrameStateDecoded:
		return "DECODED"
	default:
		return "INVALID"
	}
}

type GlobalMotionType int

const (
	GlobalMotionIdentity GlobalMotionType = iota
	GlobalMotionTranslation
	GlobalMotionRotZoom
	GlobalMotionAffine
)

type GlobalMotion struct {
	Type   GlobalMotionType
	Params [NumGlobalMotionParams]int32
}

// Segmentation carries the subset of segmentation parameters that a frame
// stores for later frames to inherit.
type Segmentation struct {
	Enabled             bool
	UpdateMap           bool
	FeatureEnabled      [MaxSegments][SegmentFeatureMax]bool
	FeatureData         [MaxSegments][SegmentFeatureMax]int16
	SegmentIDPreSkip    bool
	LastActiveSegmentID int8
}

// FrameHeader is the part of an uncompressed frame header the buffer records.
type FrameHeader struct {
	FrameType         FrameType
	UpscaledWidth     int
	Width             int
	Height            int
	RenderWidth       int
	RenderHeight      int
	Rows4x4           int
	Columns4x4        int
	RefreshFrameFlags uint8
}

// SymbolContext is the adaptive entropy-coding state owned by the symbol
// decoder. A frame keeps a private copy that later frames start from.
type SymbolContext interface {
	Clone() SymbolContext
	ResetIntraFrameYModeCdf()
	ResetCounters()
}

type ContentLightLevel struct {
	MaxContentLightLevel      uint16
	MaxFrameAverageLightLevel uint16
}

type MasteringDisplayColorVolume struct {
	PrimaryChromaticityX    [3]uint16
	PrimaryChromaticityY    [3]uint16
	WhitePointChromaticityX uint16
	WhitePointChromaticityY uint16
	LuminanceMax            uint32
	LuminanceMin            uint32
}

type ItutT35 struct {
	CountryCode          uint8
	CountryCodeExtension uint8
	Payload              []byte
}

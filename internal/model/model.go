// Package model defines the domain entities shared across memscreend's
// components: recordings, frame artifacts, chat threads, input sessions, and
// the vector/catalog records that back search.
package model

import "time"

// AudioSourceTag identifies which audio channel(s) fed a Recording.
type AudioSourceTag string

const (
	AudioNone       AudioSourceTag = "none"
	AudioMicrophone AudioSourceTag = "microphone"
	AudioSystem     AudioSourceTag = "system"
	AudioMixed      AudioSourceTag = "mixed"
)

func (t AudioSourceTag) Valid() bool {
	switch t {
	case AudioNone, AudioMicrophone, AudioSystem, AudioMixed:
		return true
	}
	return false
}

// RecordingMode selects the capture target shape.
type RecordingMode string

const (
	ModeFullscreen       RecordingMode = "fullscreen"
	ModeFullscreenSingle RecordingMode = "fullscreen-single"
	ModeRegion           RecordingMode = "region"
	ModeWindow           RecordingMode = "window"
)

func (m RecordingMode) Valid() bool {
	switch m {
	case ModeFullscreen, ModeFullscreenSingle, ModeRegion, ModeWindow:
		return true
	}
	return false
}

// AnalysisState tracks where a Recording sits in the ingestion pipeline.
type AnalysisState string

const (
	AnalysisPending   AnalysisState = "pending"
	AnalysisAnalyzing AnalysisState = "analyzing"
	AnalysisDone      AnalysisState = "done"
	AnalysisFailed    AnalysisState = "failed"
)

// RegionRect is a 4-tuple rectangle in display coordinates.
type RegionRect struct {
	X, Y, W, H int
}

// Inside reports whether r lies entirely within a display of the given size.
func (r RegionRect) Inside(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0 &&
		r.X+r.W <= width && r.Y+r.H <= height
}

// Recording is one completed (or in-flight) capture session.
type Recording struct {
	ID                string
	StartTime         time.Time
	EndTime           time.Time
	FrameCount        int
	FPS               float64
	DurationSeconds   float64
	FilePath          string
	AudioSource       AudioSourceTag
	Mode              RecordingMode
	TargetDisplayID   string
	TargetWindowTitle string
	RegionRect        *RegionRect
	AppName           string
	ContentSummary    string
	ContentTags       []string
	UserTags          []string
	AnalysisState     AnalysisState
}

// RecordingPatch carries the attributes update_recording is allowed to mutate.
type RecordingPatch struct {
	AnalysisState   *AnalysisState
	ContentSummary  *string
	ContentTags     []string
	UserTags        []string
	AppName         *string
	FPS             *float64
	FrameCount      *int
	DurationSeconds *float64
	FilePath        *string
}

// RecordingFilter narrows list_recordings.
type RecordingFilter struct {
	Since         *time.Time
	Until         *time.Time
	Tags          []string
	Mode          *RecordingMode
	AnalysisState *AnalysisState
	Query         string // matched against ocr_text/content_summary/content_tags
}

// FrameArtifact is an analyzed still derived from a Recording.
type FrameArtifact struct {
	ID                string
	RecordingID       string
	TOffsetSeconds    float64
	OCRText           string
	VisionDescription string
	EmbeddingRef      string
	CreatedAt         time.Time
}

// ChatRole identifies the speaker of a ChatMessage.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// ChatThread is a conversation with the assistant.
type ChatThread struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// ChatMessage is one turn within a ChatThread.
type ChatMessage struct {
	ID        string
	ThreadID  string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
	Ordinal   int
}

// InputEventKind enumerates the observed input event types.
type InputEventKind string

const (
	InputKeyPress    InputEventKind = "key_press"
	InputKeyRelease  InputEventKind = "key_release"
	InputMouseDown   InputEventKind = "mouse_down"
	InputMouseUp     InputEventKind = "mouse_up"
	InputMouseMove   InputEventKind = "mouse_move_sampled"
	InputMouseScroll InputEventKind = "scroll"
)

// InputSession is a contiguous interval during which input was tracked.
type InputSession struct {
	ID             string
	StartTime      time.Time
	EndTime        time.Time
	EventCount     int
	KeystrokeCount int
	ClickCount     int
}

// InputEvent is one observed keyboard/mouse event.
type InputEvent struct {
	ID        string
	SessionID string
	T         time.Time
	Kind      InputEventKind
	Key       string  // key symbol, for key_press/key_release
	Button    string  // mouse button, for mouse_down/mouse_up
	X, Y      int     // pointer position, for mouse events
	DeltaX    float64 // scroll delta
	DeltaY    float64
}

// VectorSource identifies which text produced a Vector Record's embedding.
type VectorSource string

const (
	VectorSourceOCR      VectorSource = "ocr"
	VectorSourceVision   VectorSource = "vision"
	VectorSourceCombined VectorSource = "combined"
)

// VectorRecord is one entry in the vector store.
type VectorRecord struct {
	ID          string
	Vector      []float32
	RecordingID string
	TOffset     float64
	Source      VectorSource
}

// ModelPurpose classifies a Model Catalog Entry.
type ModelPurpose string

const (
	PurposeChat      ModelPurpose = "chat"
	PurposeVision    ModelPurpose = "vision"
	PurposeEmbedding ModelPurpose = "embedding"
)

// ModelCatalogEntry describes one model the runtime advertises.
type ModelCatalogEntry struct {
	Name          string
	Purpose       ModelPurpose
	Required      bool
	Installed     bool
	InstalledName string
}

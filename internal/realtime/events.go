package realtime

// Client-to-server message kinds.
const msgGenerate = "generate"

// Server-to-client event kinds. A generate request yields zero or more status
// events followed by exactly one terminal imageResult or error.
const (
	eventStatus      = "status"
	eventImageResult = "imageResult"
	eventError       = "error"
)

type inboundMessage struct {
	Type        string `json:"type"`
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Steps       int    `json:"steps,omitempty"`
	IsPublic    bool   `json:"is_public,omitempty"`
}

type statusEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type imageResultEvent struct {
	Type         string  `json:"type"`
	TaskID       string  `json:"task_id"`
	ImageID      string  `json:"image_id"`
	ImageURL     string  `json:"image_url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Balance      string  `json:"balance"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

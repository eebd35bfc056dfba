package apimodel

// Status is the state of the running mirror.
type Status struct {
	Version            string `json:"version"`
	ActiveSource       string `json:"active_source"`
	LiveCapture        string `json:"live_capture"`
	Sleeping           bool   `json:"sleeping"`
	Brightness         int    `json:"brightness"`
	PreviousBrightness int    `json:"previous_brightness"`
	MaxBrightness      int    `json:"max_brightness"`
}

// Live capture states
const (
	LIVE_CAPTURE_CLOSED      = "closed"
	LIVE_CAPTURE_OPEN        = "open"
	LIVE_CAPTURE_UNSUPPORTED = "unsupported"
)

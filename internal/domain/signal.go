package domain

// IceServer holds one STUN/TURN entry from the signaling server.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// IceCandidate is the JSON structure for one trickled candidate.
type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// PipelineLoadRequest asks the server to prepare a processing pipeline.
type PipelineLoadRequest struct {
	PipelineID string          `json:"pipeline_id"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Seed       *int64          `json:"seed,omitempty"`
	Features   map[string]bool `json:"features,omitempty"`
	Adapters   []string        `json:"adapters,omitempty"`
}

// PipelineStatus is the polled load status, echoing the load parameters.
type PipelineStatus struct {
	State          PipelineLoadState `json:"state"`
	Message        string            `json:"message,omitempty"`
	Width          int               `json:"width,omitempty"`
	Height         int               `json:"height,omitempty"`
	Seed           *int64            `json:"seed,omitempty"`
	LoadedAdapters []string          `json:"loaded_adapters,omitempty"`
}

// AdapterInfo describes one style-adapter file available on the server.
type AdapterInfo struct {
	Name string `json:"name"`
	File string `json:"file"`
}

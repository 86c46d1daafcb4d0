package domain

import "sort"

// Prompt is one weighted prompt entry.
type Prompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// RuntimeParameters is the partial-update payload sent over the control channel
// after a session is established. Every field is optional; an absent field means
// "no change" on the server, so optional scalars are pointers and the encoder
// must omit anything left unset.
type RuntimeParameters struct {
	Prompts             []Prompt           `json:"prompts,omitempty"`
	InterpolationMethod *string            `json:"interpolation_method,omitempty"`
	TransitionSteps     *int               `json:"transition_steps,omitempty"`
	TIndexList          []int              `json:"t_index_list,omitempty"`
	NoiseScale          *float64           `json:"noise_scale,omitempty"`
	UseNoiseController  *bool              `json:"use_noise_controller,omitempty"`
	ManageCache         *bool              `json:"manage_cache,omitempty"`
	ResetCache          bool               `json:"reset_cache,omitempty"`
	AdapterScales       map[string]float64 `json:"adapter_scales,omitempty"`
	Paused              *bool              `json:"paused,omitempty"`
	ContentScale        *float64           `json:"content_scale,omitempty"`
}

// InitialParameters is the full parameter set embedded in the SDP offer
// request. Unlike RuntimeParameters there are no partial-update semantics:
// required fields always carry a value.
type InitialParameters struct {
	Prompts             []Prompt           `json:"prompts"`
	InterpolationMethod string             `json:"interpolation_method"`
	TransitionSteps     int                `json:"transition_steps,omitempty"`
	TIndexList          []int              `json:"t_index_list"`
	NoiseScale          float64            `json:"noise_scale"`
	UseNoiseController  bool               `json:"use_noise_controller"`
	ManageCache         bool               `json:"manage_cache"`
	AdapterScales       map[string]float64 `json:"adapter_scales,omitempty"`
	ContentScale        float64            `json:"content_scale"`
	InputMode           string             `json:"input_mode"`
	Width               int                `json:"width"`
	Height              int                `json:"height"`
}

// PipelineConfig is the active client-side configuration for one pipeline. It
// seeds both the remote load request and the InitialParameters of the offer.
type PipelineConfig struct {
	PipelineID string
	Width      int
	Height     int
	// Passthrough pipelines only need output dimensions; seed and feature
	// toggles are not sent for them.
	Passthrough bool
	Seed        *int64
	Features    map[string]bool

	Prompts             []Prompt
	InterpolationMethod string
	TransitionSteps     int
	TIndexList          []int
	NoiseScale          float64
	UseNoiseController  bool
	ManageCache         bool
	AdapterScales       map[string]float64
	ContentScale        float64
	InputMode           string
}

// InitialParameters derives the offer-time parameter set from the config.
func (c PipelineConfig) InitialParameters() InitialParameters {
	return InitialParameters{
		Prompts:             c.Prompts,
		InterpolationMethod: c.InterpolationMethod,
		TransitionSteps:     c.TransitionSteps,
		TIndexList:          c.TIndexList,
		NoiseScale:          c.NoiseScale,
		UseNoiseController:  c.UseNoiseController,
		ManageCache:         c.ManageCache,
		AdapterScales:       c.AdapterScales,
		ContentScale:        c.ContentScale,
		InputMode:           c.InputMode,
		Width:               c.Width,
		Height:              c.Height,
	}
}

// LoadRequest derives the pipeline-load request from the config. Passthrough
// configurations carry only the pipeline id and output dimensions.
func (c PipelineConfig) LoadRequest() PipelineLoadRequest {
	req := PipelineLoadRequest{
		PipelineID: c.PipelineID,
		Width:      c.Width,
		Height:     c.Height,
	}
	if c.Passthrough {
		return req
	}
	req.Seed = c.Seed
	req.Features = c.Features
	for name := range c.AdapterScales {
		req.Adapters = append(req.Adapters, name)
	}
	sort.Strings(req.Adapters)
	return req
}

package playback

// Clip is one decoded clip on the timeline.
type Clip struct {
	Name      string  `yaml:"name" json:"name"`
	DurationS float64 `yaml:"duration_s" json:"durationS"`
}

// Program is an ordered list of clips.
type Program struct {
	Loop  bool   `yaml:"loop,omitempty" json:"loop,omitempty"`
	Clips []Clip `yaml:"clips" json:"clips"`
}

// State enumerates player states.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
	Paused  State = "paused"
)

// Hooks are optional callbacks into the rest of the pipeline.
type Hooks struct {
	// ClipChanged fires when a different clip becomes current.
	ClipChanged func(name string)
	// Finished fires when a non-looping program runs out.
	Finished func()
}

package trace

import "encoding/json"

// speedscopeEvent mirrors Event but drops the internal OpenAt field
// from the emitted JSON.
type speedscopeEvent struct {
	Type  string `json:"type"`
	At    uint64 `json:"at"`
	Frame int    `json:"frame"`
}

type speedscopeProfile struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Unit       string            `json:"unit"`
	StartValue uint64            `json:"startValue"`
	EndValue   uint64            `json:"endValue"`
	Events     []speedscopeEvent `json:"events"`
}

type speedscopeShared struct {
	Frames []Frame `json:"frames"`
}

// speedscopeFile is the on-disk Speedscope evented-format document,
// extended with a non-standard top-level "captures" array the
// flamegraph viewer uses to line frames up with recorded screenshots.
type speedscopeFile struct {
	Schema   string            `json:"$schema"`
	Shared   speedscopeShared  `json:"shared"`
	Profiles []speedscopeProfile `json:"profiles"`
	Captures []Capture        `json:"captures"`
}

// MarshalJSON renders doc as a Speedscope evented-format file.
func (doc Document) MarshalJSON() ([]byte, error) {
	events := make([]speedscopeEvent, len(doc.Events))
	for i, ev := range doc.Events {
		events[i] = speedscopeEvent{Type: string(ev.Type), At: ev.At, Frame: ev.Frame}
	}
	captures := doc.Captures
	if captures == nil {
		captures = []Capture{}
	}

	file := speedscopeFile{
		Schema: "https://www.speedscope.app/file-format-schema.json",
		Shared: speedscopeShared{Frames: doc.Frames},
		Profiles: []speedscopeProfile{{
			Type:       "evented",
			Name:       "gbflame profile",
			Unit:       "none",
			StartValue: 0,
			EndValue:   doc.EndValue,
			Events:     events,
		}},
		Captures: captures,
	}
	return json.Marshal(file)
}

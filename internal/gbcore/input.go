package gbcore

// Button is one of the Game Boy's eight joypad buttons.
type Button uint8

const (
	ButtonRight Button = 1 << iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

// InputEvent is one normalized press or release, scheduled to apply
// at a specific frame. Press and Release are button bitmasks; either or
// both may be set.
type InputEvent struct {
	Frame   int
	Press   Button
	Release Button
}

// Joypad tracks the current bitmask of held buttons, matching the
// teacher's latched-bitmask idiom in internal/input/input.go but
// without the FPGA shift-register latching — the Frame Driver applies
// events directly, once per frame, rather than on a CPU-visible latch.
type Joypad struct {
	held Button
}

// Apply replays ev against the held button mask: releases first, then
// presses, so a same-frame release-then-press on the same button ends
// up pressed.
func (j *Joypad) Apply(ev InputEvent) {
	j.held &^= ev.Release
	j.held |= ev.Press
}

// Held returns the current button bitmask.
func (j *Joypad) Held() Button {
	return j.held
}

package panel

import "github.com/samber/lo"

const (
	MaxRawBrightness = 254
	BrightnessStep   = 25

	MinCt     = 153
	MaxCt     = 500
	CtStep    = 20
	DefaultCt = 300
)

// ToPercent converts raw bridge brightness (0-254) to a floored percentage
func ToPercent(raw uint8) int {
	return int(raw) * 100 / MaxRawBrightness
}

// ToRaw converts a percentage to raw brightness. Any non-zero percentage maps to at least 1.
func ToRaw(percent int) uint8 {
	percent = lo.Clamp(percent, 0, 100)
	raw := percent * MaxRawBrightness / 100
	if percent > 0 && raw < 1 {
		raw = 1
	}
	return uint8(raw)
}

// StepPercent moves a percentage by delta within [0,100]
func StepPercent(percent, delta int) int {
	return lo.Clamp(percent+delta, 0, 100)
}

// StepCt moves a colour temperature by delta within [MinCt,MaxCt]
func StepCt(ct uint16, delta int) uint16 {
	return uint16(lo.Clamp(int(ct)+delta, MinCt, MaxCt))
}

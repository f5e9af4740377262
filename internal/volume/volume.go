// Package volume implements VolumeResolver: the pure function that turns a
// VolumeRequest plus a zone's base volumes, max volume, ducking adjust, and
// current duck state into an effective integer volume and a set of warning
// codes. It has no side effects and is evaluated on every duck lifecycle
// edge, not just on play.
package volume

import "math"

// StreamType is one of the four volume-bearing stream kinds a zone can drive.
type StreamType string

const (
	Background StreamType = "background"
	Speech     StreamType = "speech"
	Effects    StreamType = "effects"
	Video      StreamType = "video"
)

// WarningCode names a specific resolver warning. The exact strings are
// part of the documented telemetry schema and must not change.
type WarningCode string

const (
	WarnBothVolumeAndAdjust   WarningCode = "both_volume_and_adjust"
	WarnClampAbsLow           WarningCode = "clamp_abs_low"
	WarnClampAbsHigh          WarningCode = "clamp_abs_high"
	WarnClampAdjustLow        WarningCode = "clamp_adjust_low"
	WarnClampAdjustHigh       WarningCode = "clamp_adjust_high"
	WarnClampAdjustResultLow  WarningCode = "clamp_adjust_result_low"
	WarnClampAdjustResultHigh WarningCode = "clamp_adjust_result_high"
	WarnClampBaseHigh         WarningCode = "clamp_base_high"
	WarnClampDuckLow          WarningCode = "clamp_duck_low"
	WarnClampDuckHigh         WarningCode = "clamp_duck_high"
	WarnInvalidZoneModel      WarningCode = "invalid_zone_model"
)

// Request is the per-call volume parameter set.
type Request struct {
	Type           StreamType
	AbsoluteVolume *int
	AdjustPercent  *float64
	SkipDucking    bool
}

// ZoneModel is the subset of a zone's configuration the resolver needs.
// A nil BaseVolumes map is treated as an invalid zone model.
type ZoneModel struct {
	BaseVolumes   map[StreamType]int
	MaxVolume     int
	DuckingAdjust int
}

// Used records which inputs actually drove the resolved volume, for
// telemetry and debugging.
type Used struct {
	Base          int
	Volume        *int
	AdjustPercent *float64
	DuckingAdjust *int
}

// Resolved is the output of VolumeResolver.
type Resolved struct {
	Final    int
	PreDuck  int
	Ducked   bool
	Warnings []WarningCode
	Used     Used
	Clamped  bool
}

// ErrInvalidZoneModel is returned when the zone model has no base-volume
// map at all (as distinct from a single missing stream type, which simply
// defaults to 100).
var ErrInvalidZoneModel = invalidZoneModelError{}

type invalidZoneModelError struct{}

func (invalidZoneModelError) Error() string { return string(WarnInvalidZoneModel) }

// roundHalfEven rounds v to the nearest integer, breaking ties to even.
func roundHalfEven(v float64) int {
	floor := math.Floor(v)
	diff := v - floor
	switch {
	case diff < 0.5:
		return int(floor)
	case diff > 0.5:
		return int(floor) + 1
	default:
		if int64(floor)%2 == 0 {
			return int(floor)
		}
		return int(floor) + 1
	}
}

func clamp(v, lo, hi float64) (float64, bool, bool) {
	if v < lo {
		return lo, true, false
	}
	if v > hi {
		return hi, false, true
	}
	return v, false, false
}

// Resolve computes the effective volume for a request against the zone's
// base volumes, limits, and current duck state.
func Resolve(req Request, model ZoneModel, duckActive bool) (Resolved, error) {
	if model.BaseVolumes == nil {
		return Resolved{}, ErrInvalidZoneModel
	}

	maxVolume := model.MaxVolume
	if maxVolume < 0 {
		maxVolume = 0
	}
	if maxVolume > 200 {
		maxVolume = 200
	}

	base, ok := model.BaseVolumes[req.Type]
	if !ok {
		base = 100
	}

	var (
		warnings []WarningCode
		clamped  bool
		preDuck  float64
		used     = Used{Base: base}
	)

	switch {
	case req.AbsoluteVolume != nil && req.AdjustPercent != nil:
		warnings = append(warnings, WarnBothVolumeAndAdjust)
		fallthrough
	case req.AbsoluteVolume != nil:
		v := float64(*req.AbsoluteVolume)
		used.Volume = req.AbsoluteVolume
		clampedV, lo, hi := clamp(v, 0, float64(maxVolume))
		if lo {
			warnings = append(warnings, WarnClampAbsLow)
			clamped = true
		}
		if hi {
			warnings = append(warnings, WarnClampAbsHigh)
			clamped = true
		}
		preDuck = clampedV

	case req.AdjustPercent != nil:
		adj := *req.AdjustPercent
		used.AdjustPercent = req.AdjustPercent
		adjClamped, lo, hi := clamp(adj, -100, 100)
		if lo {
			warnings = append(warnings, WarnClampAdjustLow)
			clamped = true
		}
		if hi {
			warnings = append(warnings, WarnClampAdjustHigh)
			clamped = true
		}
		result := float64(base) * (1 + adjClamped/100)
		resultClamped, rlo, rhi := clamp(result, 0, float64(maxVolume))
		if rlo {
			warnings = append(warnings, WarnClampAdjustResultLow)
			clamped = true
		}
		if rhi {
			warnings = append(warnings, WarnClampAdjustResultHigh)
			clamped = true
		}
		preDuck = resultClamped

	default:
		baseClamped, _, hi := clamp(float64(base), 0, float64(maxVolume))
		if hi {
			warnings = append(warnings, WarnClampBaseHigh)
			clamped = true
		}
		preDuck = baseClamped
	}

	preDuckInt := roundHalfEven(preDuck)

	final := preDuck
	ducked := false
	if req.Type == Background && duckActive && !req.SkipDucking {
		duckAdjust := model.DuckingAdjust
		used.DuckingAdjust = &duckAdjust
		result := preDuck * (1 + float64(duckAdjust)/100)
		resultClamped, lo, hi := clamp(result, 0, float64(maxVolume))
		if lo {
			warnings = append(warnings, WarnClampDuckLow)
			clamped = true
		}
		if hi {
			warnings = append(warnings, WarnClampDuckHigh)
			clamped = true
		}
		final = resultClamped
		ducked = true
	}

	return Resolved{
		Final:    roundHalfEven(final),
		PreDuck:  preDuckInt,
		Ducked:   ducked,
		Warnings: warnings,
		Used:     used,
		Clamped:  clamped,
	}, nil
}

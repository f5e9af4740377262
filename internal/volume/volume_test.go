package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
)

func basicModel() ZoneModel {
	return ZoneModel{
		BaseVolumes:   map[StreamType]int{Background: 100, Speech: 100, Effects: 100, Video: 100},
		MaxVolume:     150,
		DuckingAdjust: -40,
	}
}

func TestResolvePrecedence_BothVolumeAndAdjust(t *testing.T) {
	abs := 120
	adj := -25.0
	req := Request{Type: Background, AbsoluteVolume: &abs, AdjustPercent: &adj}

	resolved, err := Resolve(req, basicModel(), false)
	require.NoError(t, err)

	assert.Equal(t, 120, resolved.Final)
	assert.False(t, resolved.Ducked)
	assert.Contains(t, resolved.Warnings, WarnBothVolumeAndAdjust)
}

func TestResolveDuckingRecompute(t *testing.T) {
	model := ZoneModel{
		BaseVolumes:   map[StreamType]int{Background: 100},
		MaxVolume:     150,
		DuckingAdjust: -50,
	}
	adj := -20.0

	notDucked, err := Resolve(Request{Type: Background, AdjustPercent: &adj}, model, false)
	require.NoError(t, err)
	assert.Equal(t, 80, notDucked.Final)
	assert.False(t, notDucked.Ducked)

	ducked, err := Resolve(Request{Type: Background, AbsoluteVolume: &notDucked.PreDuck}, model, true)
	require.NoError(t, err)
	assert.Equal(t, 40, ducked.Final)
	assert.True(t, ducked.Ducked)

	restored, err := Resolve(Request{Type: Background, AbsoluteVolume: &notDucked.PreDuck}, model, false)
	require.NoError(t, err)
	assert.Equal(t, 80, restored.Final)
}

func TestResolveBoundaries(t *testing.T) {
	model := basicModel()

	negOne := -1
	res, err := Resolve(Request{Type: Background, AbsoluteVolume: &negOne}, model, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Final)
	assert.Contains(t, res.Warnings, WarnClampAbsLow)

	over := model.MaxVolume + 1
	res, err = Resolve(Request{Type: Background, AbsoluteVolume: &over}, model, false)
	require.NoError(t, err)
	assert.Equal(t, model.MaxVolume, res.Final)
	assert.Contains(t, res.Warnings, WarnClampAbsHigh)

	lowAdj := -150.0
	res, err = Resolve(Request{Type: Background, AdjustPercent: &lowAdj}, model, false)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, WarnClampAdjustLow)

	zeroVol := 0
	res, err = Resolve(Request{Type: Background, AbsoluteVolume: &zeroVol}, model, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Final)
}

func TestResolveDuckingAdjustForcedToZero(t *testing.T) {
	cfg := config.Config{Zones: map[string]config.ZoneConfig{
		"z": {BaseVolumes: config.BaseVolumes{Background: 100}, MaxVolume: 150, DuckingAdjust: 10},
	}}
	cfg.Normalize() // clamps the positive ducking adjust to 0
	assert.Equal(t, 0, cfg.Zones["z"].DuckingAdjust)

	model := ZoneModel{
		BaseVolumes:   map[StreamType]int{Background: 100},
		MaxVolume:     150,
		DuckingAdjust: cfg.Zones["z"].DuckingAdjust,
	}
	res, err := Resolve(Request{Type: Background}, model, true)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Final, "a zero ducking adjust leaves the volume unchanged while ducked")
}

func TestResolveInvalidZoneModel(t *testing.T) {
	_, err := Resolve(Request{Type: Background}, ZoneModel{}, false)
	assert.ErrorIs(t, err, ErrInvalidZoneModel)
}

func TestResolveSkipDucking(t *testing.T) {
	model := ZoneModel{
		BaseVolumes:   map[StreamType]int{Background: 100},
		MaxVolume:     150,
		DuckingAdjust: -50,
	}
	pre := 80
	res, err := Resolve(Request{Type: Background, AbsoluteVolume: &pre, SkipDucking: true}, model, true)
	require.NoError(t, err)
	assert.False(t, res.Ducked)
	assert.Equal(t, 80, res.Final)
}

// TestResolveAlwaysWithinRange is a property test: for any request and any
// zone model with a sane max volume, the final volume must fall in
// [0, maxVolume].
func TestResolveAlwaysWithinRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxVol := rapid.IntRange(0, 200).Draw(rt, "maxVolume")
		base := rapid.IntRange(0, 300).Draw(rt, "base")
		duckAdjust := rapid.IntRange(-100, 0).Draw(rt, "duckAdjust")
		duckActive := rapid.Bool().Draw(rt, "duckActive")

		model := ZoneModel{
			BaseVolumes:   map[StreamType]int{Background: base},
			MaxVolume:     maxVol,
			DuckingAdjust: duckAdjust,
		}

		req := Request{Type: Background}
		switch rapid.IntRange(0, 2).Draw(rt, "mode") {
		case 0:
			v := rapid.IntRange(-500, 500).Draw(rt, "abs")
			req.AbsoluteVolume = &v
		case 1:
			a := rapid.Float64Range(-500, 500).Draw(rt, "adj")
			req.AdjustPercent = &a
		}

		res, err := Resolve(req, model, duckActive)
		require.NoError(rt, err)
		assert.GreaterOrEqual(rt, res.Final, 0)
		assert.LessOrEqual(rt, res.Final, maxVol)
	})
}

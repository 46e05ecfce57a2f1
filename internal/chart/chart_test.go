package chart

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pollen_dashboard/internal/series"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry(series.DefaultCapacity)
	assert.Equal(t, []string{Pollen, Sensor}, reg.Keys())

	p := reg.MustGet(Pollen)
	assert.Equal(t, 1, p.Series.Tracks())
	assert.Equal(t, "pollen_data.csv", p.Filename)
	assert.True(t, p.Visible())

	s := reg.MustGet(Sensor)
	assert.Equal(t, 2, s.Series.Tracks())
	assert.Equal(t, "sensor_data.csv", s.Filename)
	assert.Len(t, s.Columns, s.Series.Tracks()+1)
}

func TestRegistry_Toggle(t *testing.T) {
	reg := DefaultRegistry(10)

	visible, err := reg.Toggle(Sensor)
	require.NoError(t, err)
	assert.False(t, visible)

	visible, err = reg.Toggle(Sensor)
	require.NoError(t, err)
	assert.True(t, visible)

	// the other chart is untouched
	assert.True(t, reg.MustGet(Pollen).Visible())
}

func TestRegistry_UnknownChart(t *testing.T) {
	reg := DefaultRegistry(10)

	_, err := reg.Toggle("weather")
	assert.True(t, errors.Is(err, ErrUnknownChart))

	_, err = reg.Get("")
	assert.True(t, errors.Is(err, ErrUnknownChart))

	assert.Panics(t, func() { reg.MustGet("weather") })
}

func TestChart_ViewAndExport(t *testing.T) {
	c := New(PollenSpec(), 5)
	require.NoError(t, c.Series.Append("10:00:00", series.Num(12)))
	require.NoError(t, c.Series.Append("10:00:05", series.Missing))

	v := c.View()
	assert.Equal(t, Pollen, v.Key)
	assert.Equal(t, 5, v.Capacity)
	assert.Equal(t, []string{"10:00:00", "10:00:05"}, v.Data.Labels)

	var buf bytes.Buffer
	require.NoError(t, c.Series.ExportCSV(&buf, c.Columns, c.CSVOptions()...))
	assert.Equal(t, "Time,Pollen Count\n10:00:00,12.00\n10:00:05,\n", buf.String())
}

func TestChart_RenderPNG(t *testing.T) {
	c := New(SensorSpec(), 10)
	for i, v := range []float64{20, 21, 22, 21.5} {
		hum := series.Num(80 - v)
		if i == 2 {
			hum = series.Missing
		}
		require.NoError(t, c.Series.Append("t", series.Num(v), hum))
	}

	var buf bytes.Buffer
	require.NoError(t, c.RenderPNG(&buf, 320, 160))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())

	// the first temperature sample is the track minimum: bottom-left of the plot
	r, g, b, _ := img.At(margin, 160-margin-1).RGBA()
	assert.Equal(t, [3]uint32{51, 255, 129}, [3]uint32{r >> 8, g >> 8, b >> 8})
}

func TestChart_RenderEmptyAndTooSmall(t *testing.T) {
	c := New(PollenSpec(), 10)

	var buf bytes.Buffer
	require.NoError(t, c.RenderPNG(&buf, 200, 100))
	_, err := png.Decode(&buf)
	require.NoError(t, err)

	assert.Error(t, c.RenderPNG(&buf, 10, 10))
}

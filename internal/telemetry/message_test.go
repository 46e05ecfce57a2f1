package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FullMessage(t *testing.T) {
	m, err := Decode([]byte(`{
		"power": {"pollen": 12.5, "Ibat": -0.2, "Vbat": 3.9},
		"dht22": [{"t": 21.3, "rh": 48}, {"t": 20, "rh": 50}],
		"gps": "$GPRMC,...\n$GPGGA,...",
		"timestamp": 1700000000000
	}`))
	require.NoError(t, err)

	v, ok := m.PowerValue(PowerPollen)
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)
	assert.True(t, m.HasPower())
	require.NotNil(t, m.PowerPtr(PowerIbat))
	assert.Equal(t, -0.2, *m.PowerPtr(PowerIbat))

	dht, ok := m.FirstDHT()
	require.True(t, ok)
	require.NotNil(t, dht.Temperature)
	assert.Equal(t, 21.3, *dht.Temperature)
	require.NotNil(t, dht.Humidity)
	assert.Equal(t, 48.0, *dht.Humidity)

	assert.Equal(t, "$GPRMC,...\n$GPGGA,...", m.GPSText())
	assert.Equal(t, time.UnixMilli(1700000000000), m.Time(time.Now()))
}

func TestDecode_EmptyMessage(t *testing.T) {
	m, err := Decode([]byte(`{}`))
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now, m.Time(now))
	assert.False(t, m.HasPower())
	assert.Nil(t, m.PowerPtr(PowerPollen))
	_, ok := m.FirstDHT()
	assert.False(t, ok)
	assert.Empty(t, m.GPSText())
}

func TestDecode_PowerWithoutPollen(t *testing.T) {
	m, err := Decode([]byte(`{"power": {}}`))
	require.NoError(t, err)
	assert.True(t, m.HasPower())
	_, ok := m.PowerValue(PowerPollen)
	assert.False(t, ok)
}

func TestDecode_NullPowerEntryIsAbsent(t *testing.T) {
	m, err := Decode([]byte(`{"power": {"pollen": null, "Ibat": 0.1}}`))
	require.NoError(t, err)
	assert.True(t, m.HasPower())
	assert.Nil(t, m.PowerPtr(PowerPollen))
	_, ok := m.PowerValue(PowerPollen)
	assert.False(t, ok)
	assert.Equal(t, Power{"Ibat": 0.1}, m.Power)
}

func TestDecode_NullPower(t *testing.T) {
	m, err := Decode([]byte(`{"power": null}`))
	require.NoError(t, err)
	assert.False(t, m.HasPower())
}

func TestDecode_MixedPowerKeepsOtherFields(t *testing.T) {
	m, err := Decode([]byte(`{
		"power": {"pollen": 3, "charging": true, "mode": "eco"},
		"gps": "$GPRMC,...",
		"dht22": [{"t": 20.5, "rh": 45}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, Power{"pollen": 3}, m.Power)
	assert.Equal(t, "$GPRMC,...", m.GPSText())
	dht, ok := m.FirstDHT()
	require.True(t, ok)
	require.NotNil(t, dht.Temperature)
	assert.Equal(t, 20.5, *dht.Temperature)
}

func TestDecode_NonObjectPowerIgnored(t *testing.T) {
	m, err := Decode([]byte(`{"power": [1, 2], "timestamp": 5}`))
	require.NoError(t, err)
	assert.False(t, m.HasPower())
	require.NotNil(t, m.Timestamp)
	assert.Equal(t, int64(5), *m.Timestamp)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"power": `))
	assert.Error(t, err)

	_, err = DecodeList([]byte(`{}`))
	assert.Error(t, err)
}

func TestDecodeList(t *testing.T) {
	ms, err := DecodeList([]byte(`[{"timestamp": 2}, {"timestamp": 1}]`))
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, int64(2), *ms[0].Timestamp)
}

package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/config"
	"github.com/relabs-tech/pollen_dashboard/internal/env"
	"github.com/relabs-tech/pollen_dashboard/internal/sensors"
)

// envReader is a local temperature/humidity sensor.
type envReader interface {
	Read() (env.Sample, error)
}

// newSensorRouter serves the endpoint the dashboard polls for local readings.
func newSensorRouter(sensor envReader) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/api/get_dht", func(c *gin.Context) {
		s, err := sensor.Read()
		if err != nil {
			log.WithField("err", err).Error("sensor node: read")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sensor unavailable"})
			return
		}
		c.JSON(http.StatusOK, s)
	})
	return r
}

// RunSensorNode serves BME280 readings over HTTP.
func RunSensorNode(cfg *config.Config) error {
	dev, err := sensors.OpenBME280(cfg.SensorBus, cfg.SensorI2CAddr)
	if err != nil {
		return err
	}
	defer dev.Close()
	log.Infof("sensor node: BME280 at 0x%02x", cfg.SensorI2CAddr)

	addr := fmt.Sprintf(":%d", cfg.SensorNodePort)
	log.Infof("sensor node: listening on %s", addr)
	return newSensorRouter(dev).Run(addr)
}

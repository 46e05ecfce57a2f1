package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/app"
	"github.com/relabs-tech/pollen_dashboard/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.WithField("err", err).Fatal("failed to load config")
	}
	cfg := config.Get()
	log.SetLevel(cfg.Level())

	log.Info("starting pollen GPS bridge (NMEA → MQTT)")
	if err := app.RunGPSBridge(cfg); err != nil {
		log.WithField("err", err).Fatal("fatal")
	}
}

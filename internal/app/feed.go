package app

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

// receiver is the part of the dashboard the feed drives.
type receiver interface {
	Receive(msg telemetry.Message)
}

// recorder stores raw payloads; satisfied by *history.Archive.
type recorder interface {
	Record(ctx context.Context, t time.Time, payload []byte) error
}

// feedHandler decodes live feed payloads, archives them and hands them to
// the dashboard.
type feedHandler struct {
	sink    receiver
	archive recorder
	now     func() time.Time
}

func (h *feedHandler) handle(payload []byte) {
	msg, err := telemetry.Decode(payload)
	if err != nil {
		log.WithField("err", err).Warn("feed: dropping undecodable message")
		return
	}

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.archive.Record(ctx, h.now(), payload); err != nil {
			log.WithField("err", err).Error("feed: archive message")
		}
		cancel()
	}

	h.sink.Receive(msg)
}

func (h *feedHandler) onMessage(_ mqtt.Client, m mqtt.Message) {
	h.handle(m.Payload())
}

// connectFeed connects to the broker and subscribes to topic. The
// subscription is renewed on every (re)connect, after which onConnect runs.
func connectFeed(broker, clientID, topic string, handler mqtt.MessageHandler, onConnect func()) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithField("err", err).Warn("mqtt: connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Infof("mqtt: connected to %s", broker)
			token := c.Subscribe(topic, 0, handler)
			token.Wait()
			if token.Error() != nil {
				log.WithField("err", token.Error()).Errorf("mqtt: subscribe %s", topic)
				return
			}
			log.Infof("mqtt: subscribed to %s", topic)
			if onConnect != nil {
				onConnect()
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect %s", broker)
	}
	return client, nil
}

// internal/publish/mqtt.go
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/config"
	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
)

// Topics, relative to <prefix>/<device id>/:
//
//	state                 retained JSON state (snapshot view)
//	availability          retained "online" / "offline"
//	mode/set              remote panel mode, keeps the current limit
//	current_limit/set     current limit in A, keeps the remote panel mode
//	remote_panel/set      {"mode": "...", "current_limit": 16.0}
//	standby/set           on | off
//	refresh/set           any payload
const (
	topicState        = "state"
	topicAvailability = "availability"
	setSuffix         = "set"
)

const publishTimeout = 5 * time.Second

// mqttClient is the subset of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTT publishes device state and routes command topics to a Commander.
type MQTT struct {
	client mqttClient
	prefix string
	cmd    Commander
	log    logrus.FieldLogger
}

func NewMQTT(client mqttClient, prefix string, cmd Commander, log logrus.FieldLogger) *MQTT {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTT{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		cmd:    cmd,
		log:    log.WithField("sink", "mqtt"),
	}
}

// Dial connects to the broker with auto-reconnect. onConnect runs on every
// (re)connect and is where subscriptions belong.
// An unreachable broker is not fatal: paho keeps retrying in the background.
func Dial(cfg config.MQTTConfig, onConnect func(mqtt.Client), log logrus.FieldLogger) mqtt.Client {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "mk3-bridge-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	// commands may wait for a running poll; they must not hold up delivery
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.WithField("client_id", clientID).Info("connected to MQTT broker")
		if onConnect != nil {
			onConnect(c)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.WithError(token.Error()).Warn("could not connect to MQTT initially, will retry in background")
	}
	return c
}

// Publish sends availability and, on success, the retained state.
func (m *MQTT) Publish(_ context.Context, res poller.PollResult) error {
	avail := "online"
	if res.Err != nil {
		avail = "offline"
	}
	if err := m.send(m.topic(res.UnitID, topicAvailability), []byte(avail)); err != nil {
		return err
	}
	if res.Err != nil {
		return nil
	}

	payload, err := json.Marshal(res.Snapshot.View())
	if err != nil {
		return fmt.Errorf("mqtt: marshal state: %w", err)
	}
	return m.send(m.topic(res.UnitID, topicState), payload)
}

// Subscribe registers the command topic handler for all devices.
func (m *MQTT) Subscribe() error {
	filter := m.prefix + "/+/+/" + setSuffix
	token := m.client.Subscribe(filter, 1, m.handle)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}
	m.log.WithField("filter", filter).Info("subscribed to command topics")
	return nil
}

func (m *MQTT) topic(id, leaf string) string {
	return m.prefix + "/" + id + "/" + leaf
}

func (m *MQTT) send(topic string, payload []byte) error {
	token := m.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// ---- commands ----

type remotePanelPayload struct {
	Mode         string   `json:"mode"`
	CurrentLimit *float64 `json:"current_limit"`
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	id, command, ok := m.parseTopic(msg.Topic())
	if !ok {
		return
	}
	payload := strings.TrimSpace(string(msg.Payload()))

	log := m.log.WithFields(logrus.Fields{"unit": id, "command": command})
	log.WithField("payload", payload).Info("received command")

	if err := m.dispatch(id, command, payload); err != nil {
		log.WithError(err).Warn("command rejected")
	}
}

func (m *MQTT) dispatch(id, command, payload string) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	switch command {
	case "mode":
		md, err := mode.Parse(payload)
		if err != nil {
			return err
		}
		return m.cmd.SetRemotePanelMode(ctx, id, md)

	case "current_limit":
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("invalid current limit %q", payload)
		}
		return m.cmd.SetRemotePanelCurrentLimit(ctx, id, v)

	case "remote_panel":
		var p remotePanelPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid remote panel payload: %w", err)
		}
		md, err := mode.Parse(p.Mode)
		if err != nil {
			return err
		}
		return m.cmd.SetRemotePanelState(ctx, id, md, p.CurrentLimit)

	case "standby":
		on, err := parseSwitch(payload)
		if err != nil {
			return err
		}
		return m.cmd.SetStandby(id, on)

	case "refresh":
		return m.cmd.Refresh(id)
	}

	return fmt.Errorf("unknown command %q", command)
}

// parseTopic splits <prefix>/<id>/<command>/set.
func (m *MQTT) parseTopic(topic string) (id, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, m.prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != setSuffix || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errors.New("standby payload must be on or off")
}

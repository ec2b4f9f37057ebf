// internal/publish/publish_test.go
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/config"
	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// ---- fakes ----

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	mu        sync.Mutex
	published []published
	filter    string
	handler   mqtt.MessageHandler
	err       error
}

func (f *fakeMQTT) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, retained, payload.([]byte)})
	return &fakeToken{err: f.err}
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.filter = topic
	f.handler = cb
	return &fakeToken{err: f.err}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool { return false }

func (m *fakeMessage) Qos() byte { return 1 }

func (m *fakeMessage) Retained() bool { return false }

func (m *fakeMessage) Topic() string { return m.topic }

func (m *fakeMessage) MessageID() uint16 { return 1 }

func (m *fakeMessage) Payload() []byte { return m.payload }

func (m *fakeMessage) Ack() {}

type call struct {
	name  string
	id    string
	mode  mode.Mode
	limit *float64
	on    bool
}

type fakeCommander struct {
	calls []call
}

func (f *fakeCommander) SetRemotePanelState(_ context.Context, id string, m mode.Mode, limit *float64) error {
	f.calls = append(f.calls, call{name: "state", id: id, mode: m, limit: limit})
	return nil
}

func (f *fakeCommander) SetRemotePanelMode(_ context.Context, id string, m mode.Mode) error {
	f.calls = append(f.calls, call{name: "mode", id: id, mode: m})
	return nil
}

func (f *fakeCommander) SetRemotePanelCurrentLimit(_ context.Context, id string, limit float64) error {
	f.calls = append(f.calls, call{name: "limit", id: id, limit: &limit})
	return nil
}

func (f *fakeCommander) SetStandby(id string, on bool) error {
	f.calls = append(f.calls, call{name: "standby", id: id, on: on})
	return nil
}

func (f *fakeCommander) Refresh(id string) error {
	f.calls = append(f.calls, call{name: "refresh", id: id})
	return nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func okResult() poller.PollResult {
	return poller.PollResult{
		UnitID:   "mp",
		At:       time.Unix(1700000000, 0).UTC(),
		Snapshot: snapshot.Snapshot{DC: &snapshot.DCReading{Voltage: 26.4}},
	}
}

// ---- MQTT ----

func TestMQTT_PublishState(t *testing.T) {
	cli := &fakeMQTT{}
	m := NewMQTT(cli, "victron_mk3/", nil, quiet())

	if err := m.Publish(context.Background(), okResult()); err != nil {
		t.Fatalf("Publish err=%v", err)
	}
	if len(cli.published) != 2 {
		t.Fatalf("published: %+v", cli.published)
	}

	avail, state := cli.published[0], cli.published[1]
	if avail.topic != "victron_mk3/mp/availability" || string(avail.payload) != "online" || !avail.retained {
		t.Fatalf("availability: %+v", avail)
	}
	if state.topic != "victron_mk3/mp/state" || !state.retained {
		t.Fatalf("state: %+v", state)
	}

	var v map[string]any
	if err := json.Unmarshal(state.payload, &v); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if v["battery_voltage"] != 26.4 {
		t.Fatalf("battery_voltage=%v", v["battery_voltage"])
	}
}

func TestMQTT_FailureOnlyAvailability(t *testing.T) {
	cli := &fakeMQTT{}
	m := NewMQTT(cli, "p", nil, quiet())

	res := okResult()
	res.Err = errors.New("asleep")
	if err := m.Publish(context.Background(), res); err != nil {
		t.Fatalf("Publish err=%v", err)
	}
	if len(cli.published) != 1 || string(cli.published[0].payload) != "offline" {
		t.Fatalf("published: %+v", cli.published)
	}
}

func TestMQTT_PublishError(t *testing.T) {
	cli := &fakeMQTT{err: errors.New("not connected")}
	m := NewMQTT(cli, "p", nil, quiet())

	if err := m.Publish(context.Background(), okResult()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMQTT_Commands(t *testing.T) {
	cli := &fakeMQTT{}
	cmd := &fakeCommander{}
	m := NewMQTT(cli, "victron_mk3", cmd, quiet())

	if err := m.Subscribe(); err != nil {
		t.Fatalf("Subscribe err=%v", err)
	}
	if cli.filter != "victron_mk3/+/+/set" {
		t.Fatalf("filter=%q", cli.filter)
	}

	send := func(topic, payload string) {
		cli.handler(nil, &fakeMessage{topic: topic, payload: []byte(payload)})
	}

	send("victron_mk3/mp/mode/set", " Charger_Only ")
	send("victron_mk3/mp/current_limit/set", "16.5")
	send("victron_mk3/mp/remote_panel/set", `{"mode":"on","current_limit":10}`)
	send("victron_mk3/mp/standby/set", "off")
	send("victron_mk3/mp/refresh/set", "")

	// rejected
	send("victron_mk3/mp/mode/set", "turbo")
	send("victron_mk3/mp/current_limit/set", "lots")
	send("victron_mk3/mp/standby/set", "maybe")
	send("victron_mk3/mp/unknown/set", "1")
	send("other/mp/mode/set", "on")
	send("victron_mk3/mp/mode", "on")

	want := []string{"mode", "limit", "state", "standby", "refresh"}
	if len(cmd.calls) != len(want) {
		t.Fatalf("calls: %+v", cmd.calls)
	}
	for i, name := range want {
		if cmd.calls[i].name != name || cmd.calls[i].id != "mp" {
			t.Fatalf("call %d: %+v want %s", i, cmd.calls[i], name)
		}
	}

	if cmd.calls[0].mode != mode.ChargerOnly {
		t.Fatalf("mode=%s", cmd.calls[0].mode)
	}
	if *cmd.calls[1].limit != 16.5 {
		t.Fatalf("limit=%v", *cmd.calls[1].limit)
	}
	if cmd.calls[2].mode != mode.On || cmd.calls[2].limit == nil || *cmd.calls[2].limit != 10 {
		t.Fatalf("remote panel call: %+v", cmd.calls[2])
	}
	if cmd.calls[3].on {
		t.Fatalf("standby should be off")
	}
}

// ---- Kafka ----

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	w := &fakeKafkaWriter{}
	k := NewKafka(w, quiet())

	if err := k.Publish(context.Background(), okResult()); err != nil {
		t.Fatalf("Publish err=%v", err)
	}

	failed := okResult()
	failed.Err = errors.New("session: device asleep")
	if err := k.Publish(context.Background(), failed); err != nil {
		t.Fatalf("Publish err=%v", err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("msgs=%d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "mp" {
		t.Fatalf("key=%q", w.msgs[0].Key)
	}

	var ok, bad Record
	if err := json.Unmarshal(w.msgs[0].Value, &ok); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(w.msgs[1].Value, &bad); err != nil {
		t.Fatal(err)
	}
	if !ok.OK || ok.State == nil || ok.State.BatteryVoltage == nil || *ok.State.BatteryVoltage != 26.4 {
		t.Fatalf("ok record: %+v", ok)
	}
	if bad.OK || bad.State != nil || bad.Error != "session: device asleep" {
		t.Fatalf("failed record: %+v", bad)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Fatalf("Close err=%v closed=%v", err, w.closed)
	}
}

func TestKafka_WriteError(t *testing.T) {
	k := NewKafka(&fakeKafkaWriter{err: errors.New("broker down")}, quiet())
	if err := k.Publish(context.Background(), okResult()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"k1:9092"}, Topic: "victron_mk3.snapshots"})
	if w.Topic != "victron_mk3.snapshots" || w.Async {
		t.Fatalf("writer: topic=%q async=%v", w.Topic, w.Async)
	}
}

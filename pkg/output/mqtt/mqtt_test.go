package mqtt

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"go.uber.org/zap/zaptest"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// recordingClient captures publishes; other methods are not used.
type recordingClient struct {
	paho.Client
	msgs []message
}

func (c *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.msgs = append(c.msgs, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func TestPublishStateTopics(t *testing.T) {
	rc := &recordingClient{}
	m := &MQTTOutput{client: rc, stateTopic: "pots/balcony/%s", log: zaptest.NewLogger(t)}
	readings := []sensor.Reading{
		{Key: "temperature", Kind: sensor.KindTemperature, Value: 21.5},
		{Key: "soil0", Kind: sensor.KindMoisture, Raw: 1100, Value: 50},
	}
	if err := m.Publish(readings); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(rc.msgs) != 2 {
		t.Fatalf("messages: %d", len(rc.msgs))
	}
	if rc.msgs[0].topic != "pots/balcony/temperature" || rc.msgs[1].topic != "pots/balcony/soil0" {
		t.Fatalf("topics: %s %s", rc.msgs[0].topic, rc.msgs[1].topic)
	}
	var p map[string]interface{}
	if err := json.Unmarshal(rc.msgs[1].payload, &p); err != nil {
		t.Fatal(err)
	}
	if p["value"] != 50.0 || p["raw"] != 1100.0 || p["kind"] != "moisture" {
		t.Fatalf("payload: %v", p)
	}
	var q map[string]interface{}
	if err := json.Unmarshal(rc.msgs[0].payload, &q); err != nil {
		t.Fatal(err)
	}
	if _, ok := q["raw"]; ok {
		t.Fatalf("temperature payload should not carry raw: %s", rc.msgs[0].payload)
	}
}

func TestPublishDiscovery(t *testing.T) {
	rc := &recordingClient{}
	m := &MQTTOutput{client: rc, log: zaptest.NewLogger(t)}
	cfg := withDefaults(config.MQTTConfig{ClientID: "node1", DiscoveryTopic: "homeassistant/sensor/node1_%s/config"})
	m.publishDiscovery(cfg, []sensor.Entity{
		{Key: "humidity", Kind: sensor.KindHumidity, Name: "humidity"},
		{Key: "soil0", Kind: sensor.KindMoisture, Name: "basil"},
	})
	if len(rc.msgs) != 2 {
		t.Fatalf("messages: %d", len(rc.msgs))
	}
	msg := rc.msgs[1]
	if msg.topic != "homeassistant/sensor/node1_soil0/config" || !msg.retained {
		t.Fatalf("discovery message: %+v", msg)
	}
	var p map[string]interface{}
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		t.Fatal(err)
	}
	if p[keyStateTopic] != "plantpot/soil0" || p[keyUniqueID] != "node1_soil0" || p[keyDeviceClass] != "moisture" {
		t.Fatalf("payload: %v", p)
	}
	if !strings.HasSuffix(p[keyName].(string), "basil") {
		t.Fatalf("name: %v", p[keyName])
	}
}

func TestWithDefaultsClientID(t *testing.T) {
	cfg := withDefaults(config.MQTTConfig{})
	if !strings.HasPrefix(cfg.ClientID, clientIDPrefix) || len(cfg.ClientID) != len(clientIDPrefix)+8 {
		t.Fatalf("client id: %q", cfg.ClientID)
	}
	if cfg.Server != DefaultServer || cfg.StateTopic != DefaultStateTopic {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestFormatStateTopic(t *testing.T) {
	if got := formatStateTopic("a/%s/state", "soil1"); got != "a/soil1/state" {
		t.Fatalf("got %q", got)
	}
	if got := formatStateTopic("a", "soil1"); got != "a/soil1" {
		t.Fatalf("got %q", got)
	}
}

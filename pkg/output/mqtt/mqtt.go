package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/plantpot-to-mqtt/pkg/config"
	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultStateTopic = "plantpot/%s"
	clientIDPrefix    = "plantpot-"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCelsius            = "°C"
	unitPercent            = "%"
	deviceClassTemperature = "temperature"
	deviceClassHumidity    = "humidity"
	deviceClassMoisture    = "moisture"
	stateClassMeasurement  = "measurement"
	valueTemplateValue     = "{{ value_json.value }}"
)

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
	log        *zap.Logger
}

func NewMQTT(cfg config.MQTTConfig, entities []sensor.Entity, logger *zap.Logger) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, log: logger}
	m.publishDiscovery(cfg, entities)
	return m, nil
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = clientIDPrefix + uuid.NewString()[:8]
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

// publishDiscovery sends retained Home Assistant discovery payloads, one per
// entity when the discovery topic holds a %s formatter.
func (m *MQTTOutput) publishDiscovery(cfg config.MQTTConfig, entities []sensor.Entity) {
	if cfg.DiscoveryTopic == "" || !strings.Contains(cfg.DiscoveryTopic, "%s") {
		return
	}
	for _, e := range entities {
		dTopic := fmt.Sprintf(cfg.DiscoveryTopic, e.Key)
		payload := discoveryPayload(cfg, e, formatStateTopic(cfg.StateTopic, e.Key))
		if err := m.publishJSON(dTopic, true, payload); err != nil {
			m.log.Error("mqtt discovery publish error", zap.String("topic", dTopic), zap.Error(err))
		}
	}
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		payload := map[string]interface{}{"value": r.Value, "kind": r.Kind}
		if r.Kind == sensor.KindMoisture {
			payload["raw"] = r.Raw
		}
		if err := m.publishJSON(formatStateTopic(m.stateTopic, r.Key), false, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}

// helper: format a state topic for a reading key using an optional formatter
func formatStateTopic(base, key string) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, key)
	}
	return base + "/" + key
}

func discoveryPayload(cfg config.MQTTConfig, e sensor.Entity, stateTopic string) map[string]interface{} {
	name := cfg.DiscoveryName
	if name == "" {
		name = "Plant pot " + cfg.ClientID
	}
	payload := map[string]interface{}{
		keyName:                name + " " + e.Name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateValue,
		keyJSONAttributesTopic: stateTopic,
	}
	switch e.Kind {
	case sensor.KindTemperature:
		payload[keyUnitOfMeasurement] = unitCelsius
		payload[keyDeviceClass] = deviceClassTemperature
	case sensor.KindHumidity:
		payload[keyUnitOfMeasurement] = unitPercent
		payload[keyDeviceClass] = deviceClassHumidity
	case sensor.KindMoisture:
		payload[keyUnitOfMeasurement] = unitPercent
		payload[keyDeviceClass] = deviceClassMoisture
	}
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	payload[keyUniqueID] = uid + "_" + e.Key
	return payload
}

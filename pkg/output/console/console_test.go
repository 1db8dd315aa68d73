package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
)

func TestConsolePublish(t *testing.T) {
	var buf bytes.Buffer
	c := &ConsoleOutput{w: &buf}
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	readings := []sensor.Reading{
		{Key: "temperature", Kind: sensor.KindTemperature, Value: 21.0, Timestamp: ts},
		{Key: "soil0", Kind: sensor.KindMoisture, Raw: 1100, Value: 50, Timestamp: ts},
	}
	if err := c.Publish(readings); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := "2025-09-19T14:41:54Z temperature key=temperature raw=0 value=21.00\n" +
		"2025-09-19T14:41:54Z moisture key=soil0 raw=1100 value=50.00\n"
	if buf.String() != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", buf.String(), want)
	}
}

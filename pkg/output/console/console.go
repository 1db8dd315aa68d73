package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/plantpot-to-mqtt/pkg/output"
	"github.com/ericogr/plantpot-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		if _, err := fmt.Fprintf(c.w, "%s %s key=%s raw=%d value=%.2f\n", r.Timestamp.Format(time.RFC3339), r.Kind, r.Key, r.Raw, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

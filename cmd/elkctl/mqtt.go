package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/config"
	mqttbridge "github.com/chaz8081/elkctl/internal/mqtt"
)

var cmdMQTT = &cobra.Command{
	Use:   `mqtt`,
	Short: "Bridge the strip to an MQTT broker",
	Long: `Subscribe to <base>/set/{power,color,brightness,color_temp,effect,effect_speed}
and apply {"value": ...} payloads to the strip. The last commanded state is
published, retained, on <base>/state; bridge liveness on <base>/availability.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ctx, stop := signalContext()
		defer stop()

		c := newController()
		if err := c.ConnectWithRetry(ctx, cfg.Device.ReconnectMax); err != nil {
			return err
		}
		printBanner(c)
		light := c.Resilient(cfg.Device.ReconnectMax)
		defer func() { _ = light.Close() }()

		bridge, err := mqttbridge.New(light, mqttbridge.Config{
			BrokerURL: cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			BaseTopic: cfg.MQTT.BaseTopic,
			QoS:       cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Bridging on %s (%s/set/...). Press Ctrl+C to exit.\n", cfg.MQTT.Broker, cfg.MQTT.BaseTopic)
		err = bridge.Run(ctx)
		if errors.Is(err, context.Canceled) {
			slog.Info("[MQTT] bridge stopped")
			return nil
		}
		return err
	},
}

var cmdInitConfig = &cobra.Command{
	Use:               `init-config`,
	Short:             "Write the default config file if none exists",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return nil
		}
		fmt.Println("Wrote", path)
		return nil
	},
}

func init() {
	app.AddCommand(cmdMQTT, cmdInitConfig)
}

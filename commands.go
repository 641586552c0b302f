package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"iot-dashboard/adapters"
	"iot-dashboard/application"

	"github.com/urfave/cli/v2"
)

const sendPollInterval = 50 * time.Millisecond

var sendCommand = &cli.Command{
	Name:  "send",
	Usage: "publish a single control command and exit",
	Flags: []cli.Flag{FlagSendTimeout},
	Subcommands: []*cli.Command{
		{
			Name:      "light",
			Usage:     "switch the lights",
			ArgsUsage: "on|off",
			Action: func(ctx *cli.Context) error {
				on, err := parseLightArg(ctx.Args().First())
				if err != nil {
					return err
				}
				return sendControl(ctx, func(c *application.ControlService) error {
					c.SetLight(on)
					return nil
				})
			},
		},
		{
			Name:      "led",
			Usage:     "select an led",
			ArgsUsage: "<id>",
			Action: func(ctx *cli.Context) error {
				id, err := strconv.Atoi(ctx.Args().First())
				if err != nil {
					return fmt.Errorf("led id must be an integer: %q", ctx.Args().First())
				}
				return sendControl(ctx, func(c *application.ControlService) error {
					return c.SelectLED(id)
				})
			},
		},
		{
			Name:      "color",
			Usage:     "set the led color",
			ArgsUsage: "<#rrggbb>",
			Action: func(ctx *cli.Context) error {
				hex := ctx.Args().First()
				return sendControl(ctx, func(c *application.ControlService) error {
					return c.SetColor(hex)
				})
			},
		},
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "manage schedules on the configuration store",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "print all records as json",
			Action: func(ctx *cli.Context) error {
				store, err := newConfigStore()
				if err != nil {
					return err
				}

				records, err := store.List(ctx.Context)
				if err != nil {
					return err
				}

				out, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, string(out))
				return err
			},
		},
		{
			Name:      "push",
			Usage:     "create or update records from a json file",
			ArgsUsage: "<file>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return fmt.Errorf("expected exactly one file argument")
				}

				data, err := os.ReadFile(ctx.Args().First())
				if err != nil {
					return err
				}

				records, err := parseConfigRecords(data)
				if err != nil {
					return err
				}

				store, err := newConfigStore()
				if err != nil {
					return err
				}

				for _, record := range records {
					if err := store.Save(ctx.Context, record); err != nil {
						return fmt.Errorf("save %s: %w", record.Topic, err)
					}
				}

				logger.Info().Int("records", len(records)).Msg("configuration sent")
				return nil
			},
		},
		{
			Name:  "clear",
			Usage: "delete all records",
			Action: func(ctx *cli.Context) error {
				store, err := newConfigStore()
				if err != nil {
					return err
				}

				if err := store.Clear(ctx.Context); err != nil {
					return err
				}

				logger.Info().Msg("configurations cleared")
				return nil
			},
		},
	},
}

func newConfigStore() (*adapters.ConfigStoreClient, error) {
	return adapters.NewConfigStoreClient(adapters.ConfigStoreClientParams{
		BaseURL: config.ConfigStore.URL,
		Timeout: config.ConfigStore.Timeout,
		Log:     moduleLogger("config-store"),
	})
}

// sendControl publishes through a fresh client and waits until the broker
// acknowledged it. The command is buffered first so invalid input never
// opens a connection.
func sendControl(ctx *cli.Context, send func(c *application.ControlService) error) error {
	mqttClient, err := newMQTTClient()
	if err != nil {
		return err
	}

	control, err := application.NewControlService(mqttClient)
	if err != nil {
		return err
	}

	if err := send(control); err != nil {
		return err
	}

	appCtx, cancel := newAppContext()
	defer cancel()

	waitCtx, waitCancel := context.WithTimeout(appCtx, ctx.Duration(FlagSendTimeout.Name))
	defer waitCancel()

	mqttClient.Connect()
	defer mqttClient.Disconnect()

	return waitDelivered(waitCtx, mqttClient, 1)
}

// waitDelivered polls until n messages were acknowledged and nothing is left
// in the outbound buffer.
func waitDelivered(ctx context.Context, client application.MQTTClient, n uint64) error {
	ticker := time.NewTicker(sendPollInterval)
	defer ticker.Stop()

	for {
		status := client.Status()
		if status.Pending == 0 && status.MessageCount >= n {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("message not delivered (state %s, pending %d): %w", status.State, status.Pending, ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseLightArg(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("light state must be on or off: %q", arg)
	}
}

// parseConfigRecords accepts a single record object or an array of them.
func parseConfigRecords(data []byte) ([]application.ConfigRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty configuration")
	}

	var records []application.ConfigRecord
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
	} else {
		var record application.ConfigRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		records = append(records, record)
	}

	for i, record := range records {
		if record.Topic == "" {
			return nil, fmt.Errorf("record %d: topic is required", i)
		}
	}
	return records, nil
}

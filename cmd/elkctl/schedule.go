package main

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/elkctl/internal/ble"
	"github.com/chaz8081/elkctl/internal/ble/protocol"
)

// scheduleFlags are shared by schedule-on and schedule-off.
type scheduleFlags struct {
	hour, minute int
	days         string
	disable      bool
}

var (
	schedOn  = scheduleFlags{hour: 8, minute: 30}
	schedOff = scheduleFlags{hour: 23, minute: 45}

	flagTimeAt string

	cmdScheduleOn = &cobra.Command{
		Use:   `schedule-on`,
		Short: "Program the strip to turn on at a time of day",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			days, err := protocol.ParseDays(schedOn.days)
			if err != nil {
				return err
			}
			return withController(func(ctx context.Context, c *ble.Controller) error {
				if err := c.SetScheduleOn(ctx, days, schedOn.hour, schedOn.minute, !schedOn.disable); err != nil {
					return err
				}
				fmt.Printf("Turn on at %02d:%02d on %s\n", schedOn.hour, schedOn.minute, days)
				return nil
			})
		},
	}

	cmdScheduleOff = &cobra.Command{
		Use:   `schedule-off`,
		Short: "Program the strip to turn off at a time of day",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			days, err := protocol.ParseDays(schedOff.days)
			if err != nil {
				return err
			}
			return withController(func(ctx context.Context, c *ble.Controller) error {
				if err := c.SetScheduleOff(ctx, days, schedOff.hour, schedOff.minute, !schedOff.disable); err != nil {
					return err
				}
				fmt.Printf("Turn off at %02d:%02d on %s\n", schedOff.hour, schedOff.minute, days)
				return nil
			})
		},
	}

	cmdTime = &cobra.Command{
		Use:   `time`,
		Short: "Set the device clock (now, or --at \"Mon 07:15:00\")",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if flagTimeAt == "" {
				return withController(func(ctx context.Context, c *ble.Controller) error {
					return c.SyncTime(ctx)
				})
			}
			dow, t, err := parseAt(flagTimeAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			return withController(func(ctx context.Context, c *ble.Controller) error {
				return c.SetCustomTime(ctx, t.Hour(), t.Minute(), t.Second(), dow)
			})
		},
	}
)

// parseAt splits "Mon 15:04:05" into an ISO weekday (Monday=1) and a clock time.
func parseAt(s string) (int, time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, time.Time{}, fmt.Errorf("want \"<day> HH:MM:SS\", got %q", s)
	}
	days, err := protocol.ParseDays(fields[0])
	if err != nil {
		return 0, time.Time{}, err
	}
	dow := bits.TrailingZeros8(days.Byte()) + 1
	if bits.OnesCount8(days.Byte()) != 1 {
		return 0, time.Time{}, fmt.Errorf("%q is not a single day", fields[0])
	}
	t, err := time.Parse("15:04:05", fields[1])
	if err != nil {
		return 0, time.Time{}, err
	}
	return dow, t, nil
}

func (f *scheduleFlags) register(c *cobra.Command) {
	c.Flags().IntVar(&f.hour, `hour`, f.hour, `hour (0-23)`)
	c.Flags().IntVarP(&f.minute, `minute`, `m`, f.minute, `minute (0-59)`)
	c.Flags().StringVarP(&f.days, `days`, `d`, `weekdays`, `days (mon,tue,wed,thu,fri,sat,sun,all,weekdays,weekend)`)
	c.Flags().BoolVar(&f.disable, `disable`, false, `store the schedule disabled`)
}

func init() {
	schedOn.register(cmdScheduleOn)
	schedOff.register(cmdScheduleOff)
	cmdTime.Flags().StringVar(&flagTimeAt, `at`, "", `explicit time as "Mon 15:04:05"`)

	app.AddCommand(cmdScheduleOn, cmdScheduleOff, cmdTime)
}

// crowlink
// Copyright (c) 2025 The CrowDisplay Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of crowlink.
//
// crowlink is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// crowlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with crowlink; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/spf13/cobra"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one typed command to the companion",
}

var sendHotkeyCmd = &cobra.Command{
	Use:   "hotkey <chord>",
	Short: "Send a keystroke chord, e.g. ctrl+alt+f13",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		hotkey, err := crowlink.ParseHotkey(args[0])
		if err != nil {
			return err
		}
		return deliver(hotkey.Chord(), func(ctx context.Context, link *crowlink.Link) (crowlink.AckStatus, error) {
			return link.SendHotkeyAndWait(ctx, hotkey.Modifiers, hotkey.Keycode)
		})
	},
}

var sendMediaCmd = &cobra.Command{
	Use:   "media <key>",
	Short: "Send a media key, e.g. playpause, volumeup or 0x00CD",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		usage, err := crowlink.ParseMediaUsage(args[0])
		if err != nil {
			return err
		}
		return deliver(crowlink.MediaUsageName(usage), func(ctx context.Context, link *crowlink.Link) (crowlink.AckStatus, error) {
			return link.SendMediaKeyAndWait(ctx, usage)
		})
	},
}

var sendButtonCmd = &cobra.Command{
	Use:   "button <page> <widget>",
	Short: "Send a raw widget press",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		page, err := parseByte(args[0])
		if err != nil {
			return fmt.Errorf("page: %w", err)
		}
		widget, err := parseByte(args[1])
		if err != nil {
			return fmt.Errorf("widget: %w", err)
		}
		what := fmt.Sprintf("button %d/%d", page, widget)
		return deliver(what, func(ctx context.Context, link *crowlink.Link) (crowlink.AckStatus, error) {
			return link.SendButtonAndWait(ctx, page, widget)
		})
	},
}

var sendPowerCmd = &cobra.Command{
	Use:   "power <wake|sleep|shutdown|restart>",
	Short: "Request a host power transition",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var mode crowlink.PowerMode
		switch args[0] {
		case "wake":
			mode = crowlink.PowerWake
		case "sleep":
			mode = crowlink.PowerSleep
		case "shutdown":
			mode = crowlink.PowerShutdown
		case "restart":
			mode = crowlink.PowerRestart
		default:
			return fmt.Errorf("unknown power state %q", args[0])
		}
		return deliver("power "+mode.String(), func(ctx context.Context, link *crowlink.Link) (crowlink.AckStatus, error) {
			return link.SendPowerStateAndWait(ctx, mode)
		})
	},
}

var sendTimeCmd = &cobra.Command{
	Use:   "time",
	Short: "Push the local wall-clock time to the panel",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		link, connInfo, err := openLink()
		if err != nil {
			return err
		}
		defer func() { _ = link.Close() }()

		log.Debugf("connected via %s", connInfo)
		if err := link.SendTimeSync(time.Now()); err != nil {
			return err
		}
		fmt.Println("time sync sent")
		return nil
	},
}

var (
	ddcAdjust  string
	ddcDisplay uint8
)

var sendDDCCmd = &cobra.Command{
	Use:   "ddc <vcp> <value>",
	Short: "Send a monitor control adjustment, e.g. ddc 0x10 75",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		vcp, err := parseByte(args[0])
		if err != nil {
			return fmt.Errorf("vcp: %w", err)
		}
		value, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}

		var adjust crowlink.DDCAdjust
		switch ddcAdjust {
		case "set":
			adjust = crowlink.DDCSet
		case "up":
			adjust = crowlink.DDCUp
		case "down":
			adjust = crowlink.DDCDown
		default:
			return fmt.Errorf("unknown adjustment %q (use set, up or down)", ddcAdjust)
		}

		cmd := crowlink.DDCCommand{
			VCP:     vcp,
			Value:   uint16(value),
			Adjust:  adjust,
			Display: ddcDisplay,
		}
		what := fmt.Sprintf("ddc vcp=0x%02X %s %d", cmd.VCP, cmd.Adjust, cmd.Value)
		return deliver(what, func(ctx context.Context, link *crowlink.Link) (crowlink.AckStatus, error) {
			return link.SendDDCAndWait(ctx, cmd)
		})
	},
}

func init() {
	sendCmd.PersistentFlags().DurationVar(&sendTimeout, "timeout", 2*time.Second,
		"How long to wait for delivery")
	sendDDCCmd.Flags().StringVar(&ddcAdjust, "adjust", "set", "Adjustment mode: set, up or down")
	sendDDCCmd.Flags().Uint8Var(&ddcDisplay, "display", 0, "Target display number")

	sendCmd.AddCommand(sendHotkeyCmd, sendMediaCmd, sendButtonCmd,
		sendPowerCmd, sendTimeCmd, sendDDCCmd)
	rootCmd.AddCommand(sendCmd)
}

// deliver opens the link, runs one blocking acknowledged send and
// reports the outcome.
func deliver(what string, send func(context.Context, *crowlink.Link) (crowlink.AckStatus, error)) error {
	link, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	log.Debugf("connected via %s", connInfo)

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	start := time.Now()
	status, err := send(ctx, link)
	if err != nil {
		return fmt.Errorf("%s not delivered: %w", what, err)
	}
	elapsed := time.Since(start).Round(time.Microsecond)

	if status != crowlink.AckOK {
		return fmt.Errorf("%s delivered in %s, but the companion reported %s", what, elapsed, status)
	}
	fmt.Printf("%s delivered in %s\n", what, elapsed)
	return nil
}

func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(n), nil
}

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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/spf13/cobra"
)

var (
	monitorTUI           bool
	monitorStatsInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream decoded link traffic",
	Long: `Continuously decode and display link messages as they arrive.

Each message is shown with timestamp, type and decoded payload. Link
statistics are printed periodically. With --tui the same stream renders
in a live dashboard instead.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Render a live dashboard instead of line output")
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 10*time.Second,
		"How often to print link statistics (line mode)")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(_ *cobra.Command, _ []string) error {
	link, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	if monitorTUI {
		return runMonitorTUI(link, connInfo)
	}

	fmt.Printf("crowctl - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	link.OnMessage(func(msg crowlink.Message, in *crowlink.Inbound) {
		fmt.Printf("%s  %s\n", in.At.Format("15:04:05.000"), formatMessage(msg, in))
	})
	link.OnLinkUp(func() { fmt.Println("--- link up ---") })
	link.OnLinkDown(func() { fmt.Println("--- link down ---") })
	link.OnDeliveryFailure(func(f crowlink.DeliveryFailure) {
		fmt.Printf("!!! delivery failure: %s seq %d after %d attempts\n", f.Type, f.Seq, f.Attempts)
	})

	ctx, cancel := signalContext()
	defer cancel()

	go printStatsLoop(ctx, link)

	if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func printStatsLoop(ctx context.Context, link *crowlink.Link) {
	ticker := time.NewTicker(monitorStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Println(formatStats(link))
		}
	}
}

// formatStats renders one statistics line from link counters and
// transport state.
func formatStats(link *crowlink.Link) string {
	stats := link.Stats()
	state := link.Transport().LinkState()

	age := "never"
	if !state.LastSeen.IsZero() {
		age = time.Since(state.LastSeen).Round(time.Millisecond).String()
	}
	return fmt.Sprintf("[stats] tx=%d rx=%d acks=%d/%d retries=%d failures=%d rssi=%d last-seen=%s",
		stats.TxMessages, stats.RxMessages, stats.RxAcks, stats.AcksSent,
		stats.TxRetries, stats.DeliveryFailures, state.RSSI, age)
}

// formatMessage renders one decoded message for line and TUI output.
func formatMessage(msg crowlink.Message, in *crowlink.Inbound) string {
	switch m := msg.(type) {
	case crowlink.Hotkey:
		return fmt.Sprintf("HOTKEY     %s", m.Chord())
	case crowlink.MediaKey:
		return fmt.Sprintf("MEDIA_KEY  %s", crowlink.MediaUsageName(m.Usage))
	case crowlink.Ping:
		return fmt.Sprintf("PING       rssi=%d", in.RSSI)
	case *crowlink.Stats:
		title, err := m.MediaTitle()
		if err != nil || title == "" {
			title = "-"
		}
		return fmt.Sprintf("STATS      up=%ds cpu=%d%% mem=%d%% vol=%d%% playing=%t title=%q",
			m.UptimeSec, m.CPULoadPct, m.MemUsedPct, m.VolumePct, m.MediaPlaying, title)
	case crowlink.PowerState:
		return fmt.Sprintf("POWER      %s", m.Mode)
	case crowlink.TimeSync:
		return fmt.Sprintf("TIME_SYNC  %s", time.Unix(int64(m.Unix), 0).Format(time.RFC3339))
	case crowlink.DDCCommand:
		return fmt.Sprintf("DDC_CMD    vcp=0x%02X %s value=%d display=%d",
			m.VCP, m.Adjust, m.Value, m.Display)
	case crowlink.Button:
		return fmt.Sprintf("BUTTON     page=%d widget=%d", m.Page, m.Widget)
	default:
		return fmt.Sprintf("%-10s %d bytes", in.Type, len(in.Payload))
	}
}

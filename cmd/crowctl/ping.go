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
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
	pingTimeout  time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time to the companion",
	Long: `Send liveness probes and measure acknowledgment round trips.

Reports per-probe RTT plus min/avg/max and loss over the run, the
quickest way to judge whether the link meets its latency budget.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "Number of probes to send")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", 200*time.Millisecond,
		"Delay between probes")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", time.Second, "Per-probe timeout")
	rootCmd.AddCommand(pingCmd)
}

func runPing(_ *cobra.Command, _ []string) error {
	link, connInfo, err := openLink()
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	fmt.Printf("Pinging companion via %s\n", connInfo)

	var (
		received int
		total    time.Duration
		minRTT   time.Duration
		maxRTT   time.Duration
	)

	for i := 1; i <= pingCount; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		rtt, err := link.PingAndWait(ctx)
		cancel()

		if err != nil {
			fmt.Printf("probe %d: lost (%v)\n", i, err)
		} else {
			fmt.Printf("probe %d: rtt=%s\n", i, rtt.Round(time.Microsecond))
			received++
			total += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	loss := float64(pingCount-received) / float64(pingCount) * 100
	fmt.Printf("\n%d probes, %d received, %.0f%% loss\n", pingCount, received, loss)
	if received > 0 {
		fmt.Printf("rtt min/avg/max = %s/%s/%s\n",
			minRTT.Round(time.Microsecond),
			(total / time.Duration(received)).Round(time.Microsecond),
			maxRTT.Round(time.Microsecond))
	}
	if received == 0 {
		return fmt.Errorf("no response from companion")
	}
	return nil
}

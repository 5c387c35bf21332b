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
	"encoding/hex"
	"fmt"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"
)

// udpHeaderLen is the UDP radio driver's link-layer header:
// CHANNEL(1) + SRC(6).
const udpHeaderLen = 7

var (
	dumpUDPPort int
	dumpChannel int
	dumpRaw     bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file.pcap>",
	Short: "Decode captured UDP radio traffic offline",
	Long: `Read a pcap capture of the UDP radio rig and decode every link
message in it.

Datagrams on the radio port carry CHANNEL(1) SRC(6) TYPE PAYLOAD; the
link-layer header is stripped and the rest decoded exactly as the live
receive path would.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpUDPPort, "udp-port", 17320, "UDP port the radio rig used")
	dumpCmd.Flags().IntVar(&dumpChannel, "channel", 0, "Only show this radio channel (0 = all)")
	dumpCmd.Flags().BoolVar(&dumpRaw, "raw", false, "Show raw datagram hex dumps")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(_ *cobra.Command, args []string) error {
	handle, err := pcap.OpenOffline(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer handle.Close()

	var shown, skipped int
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if int(udp.DstPort) != dumpUDPPort && int(udp.SrcPort) != dumpUDPPort {
			continue
		}

		meta := packet.Metadata()
		if dumpRaw {
			fmt.Printf("raw datagram (%d bytes):\n%s", len(udp.Payload), hex.Dump(udp.Payload))
		}

		if printDatagram(meta.Timestamp.Format("15:04:05.000000"), udp.Payload) {
			shown++
		} else {
			skipped++
		}
	}

	fmt.Printf("\n%d messages shown, %d skipped\n", shown, skipped)
	return nil
}

// printDatagram decodes one radio datagram. Returns false for
// datagrams that are malformed or filtered out.
func printDatagram(stamp string, payload []byte) bool {
	if len(payload) < udpHeaderLen+1 {
		fmt.Printf("%s  [short datagram, %d bytes]\n", stamp, len(payload))
		return false
	}

	channel := payload[0]
	if dumpChannel != 0 && int(channel) != dumpChannel {
		return false
	}
	var src crowlink.PeerAddr
	copy(src[:], payload[1:udpHeaderLen])
	typ := crowlink.MessageType(payload[udpHeaderLen])
	body := payload[udpHeaderLen+1:]

	msg, err := crowlink.DecodeMessage(typ, body)
	if err != nil {
		fmt.Printf("%s  ch=%d %s %s: undecodable: %v\n", stamp, channel, src, typ, err)
		return false
	}

	in := &crowlink.Inbound{Type: typ, Payload: body, From: src}
	fmt.Printf("%s  ch=%d %s %s\n", stamp, channel, src, formatMessage(msg, in))
	return true
}

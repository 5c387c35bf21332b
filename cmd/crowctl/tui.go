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
	"strings"
	"time"

	crowlink "github.com/NoobyNull/CrowDisplay-sub000"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const tuiMaxLogLines = 500

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	tuiStatusUpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Bold(true)

	tuiStatusDownStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)

	tuiStatsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	tuiFailureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	tuiBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// Messages fed into the TUI from the link's polling goroutine.
type trafficMsg struct {
	line string
}
type linkEventMsg struct {
	line string
}
type statsTickMsg time.Time

type monitorModel struct {
	link     *crowlink.Link
	viewport viewport.Model
	lines    []string
	connInfo string
	stats    string
	width    int
	height   int
	ready    bool
	quitting bool
}

func newMonitorModel(link *crowlink.Link, connInfo string) monitorModel {
	return monitorModel{
		link:     link,
		connInfo: connInfo,
		stats:    formatStats(link),
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (monitorModel) Init() tea.Cmd {
	return statsTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logHeight := msg.Height - 5
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, logHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = logHeight
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()

	case trafficMsg:
		m.appendLine(msg.line)

	case linkEventMsg:
		m.appendLine(msg.line)

	case statsTickMsg:
		m.stats = formatStats(m.link)
		return m, statsTick()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *monitorModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > tuiMaxLogLines {
		m.lines = m.lines[len(m.lines)-tuiMaxLogLines:]
	}
	if m.ready {
		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		if atBottom {
			m.viewport.GotoBottom()
		}
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting..."
	}

	status := tuiStatusDownStyle.Render("DOWN")
	if m.link.Up() {
		status = tuiStatusUpStyle.Render("UP")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		tuiTitleStyle.Render("crowctl monitor"),
		"  ", m.connInfo, "  link: ", status)

	footer := tuiStatsStyle.Render(m.stats + "   (q to quit)")

	return fmt.Sprintf("%s\n%s\n%s",
		header,
		tuiBorderStyle.Render(m.viewport.View()),
		footer)
}

// runMonitorTUI drives the link from a background goroutine and
// renders its traffic in a live dashboard until the user quits.
func runMonitorTUI(link *crowlink.Link, connInfo string) error {
	p := tea.NewProgram(newMonitorModel(link, connInfo), tea.WithAltScreen())

	link.OnMessage(func(msg crowlink.Message, in *crowlink.Inbound) {
		p.Send(trafficMsg{line: fmt.Sprintf("%s  %s",
			in.At.Format("15:04:05.000"), formatMessage(msg, in))})
	})
	link.OnLinkUp(func() {
		p.Send(linkEventMsg{line: tuiStatusUpStyle.Render("--- link up ---")})
	})
	link.OnLinkDown(func() {
		p.Send(linkEventMsg{line: tuiStatusDownStyle.Render("--- link down ---")})
	})
	link.OnDeliveryFailure(func(f crowlink.DeliveryFailure) {
		p.Send(linkEventMsg{line: tuiFailureStyle.Render(fmt.Sprintf(
			"!!! delivery failure: %s seq %d after %d attempts", f.Type, f.Seq, f.Attempts))})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := link.Run(ctx); err != nil && ctx.Err() == nil {
			p.Send(linkEventMsg{line: tuiFailureStyle.Render("link loop: " + err.Error())})
		}
	}()

	_, err := p.Run()
	return err
}

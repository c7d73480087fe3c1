// Package ui is a thin terminal consumer of the updater's public API. It
// renders whatever the core last produced and never blocks on sampling.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/google/pulsemon/internal/config"
	"github.com/google/pulsemon/internal/gpu"
	"github.com/google/pulsemon/internal/metrics"
	"github.com/google/pulsemon/internal/updater"
)

type TickMsg time.Time

// SysInfoMsg carries the host identity, resolved once off the render path.
type SysInfoMsg metrics.SystemInfo

const renderInterval = 250 * time.Millisecond

func tick() tea.Cmd {
	return tea.Tick(renderInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

type RootModel struct {
	core *updater.Updater
	info metrics.SystemInfo

	procTable table.Model
	filter    textinput.Model
	filtering bool

	width, height int
}

func NewRootModel(core *updater.Updater) RootModel {
	columns := []table.Column{
		{Title: "PID", Width: 7},
		{Title: "Core", Width: 4},
		{Title: "CPU%", Width: 6},
		{Title: "Mem%", Width: 6},
		{Title: "RSS", Width: 9},
		{Title: "Name", Width: 24},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color(ColorAsh)).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorCharcoal)).
		Background(lipgloss.Color(ColorAmber)).
		Bold(false)
	t.SetStyles(s)

	ti := textinput.New()
	ti.Placeholder = "name or pid"
	ti.Prompt = "/"
	ti.CharLimit = 30
	ti.Width = 24

	return RootModel{core: core, procTable: t, filter: ti}
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.fetchSysInfo())
}

func (m RootModel) fetchSysInfo() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return SysInfoMsg(m.core.SystemInfo(ctx))
	}
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.filtering {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.procTable.Focus()
				return m, nil
			}
		}
		m.filter, cmd = m.filter.Update(msg)
		m.refreshRows()
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.core.SetPaused(!m.core.Paused())
		case "u":
			if m.core.UnitMode() == config.UnitMB {
				m.core.SetUnitMode(config.UnitMiB)
			} else {
				m.core.SetUnitMode(config.UnitMB)
			}
		case "/":
			m.filtering = true
			m.filter.Focus()
			m.procTable.Blur()
			return m, textinput.Blink
		case "enter":
			if row := m.procTable.SelectedRow(); len(row) > 0 {
				if pid, err := strconv.Atoi(row[0]); err == nil {
					m.core.RequestExpand(int32(pid))
				}
			}
		}
		m.procTable, cmd = m.procTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := m.height - 14
		if h < 4 {
			h = 4
		}
		m.procTable.SetHeight(h)

	case SysInfoMsg:
		m.info = metrics.SystemInfo(msg)

	case TickMsg:
		m.refreshRows()
		return m, tick()
	}

	return m, nil
}

// refreshRows rebuilds the table from the latest hierarchy; expanded
// processes show their threads as indented child rows.
func (m *RootModel) refreshRows() {
	nodes := m.core.FilterProcesses(m.filter.Value())
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, table.Row{
			strconv.Itoa(int(n.PID)),
			strconv.Itoa(n.Core),
			fmt.Sprintf("%.1f", n.CPUPercent),
			fmt.Sprintf("%.1f", n.MemoryPercent),
			formatBytes(n.RSS),
			n.Name,
		})
		for _, th := range n.Threads {
			rows = append(rows, table.Row{
				strconv.Itoa(int(th.TID)),
				"",
				fmt.Sprintf("%.1f", th.CPUPercent),
				"",
				"",
				"  └ " + th.Name,
			})
		}
	}
	m.procTable.SetRows(rows)
}

func (m RootModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := TitleStyle.Render("pulsemon")
	if line := m.sysInfoLine(); line != "" {
		header += "  " + LabelStyle.Render(line)
	}
	if m.core.Paused() {
		header += "  " + PausedStyle.Render("PAUSED")
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.metricsView(),
		PanelStyle.Render(m.procTable.View()),
		m.footerView(),
	)
	return main
}

// sysInfoLine condenses the static host identity into one header line.
func (m RootModel) sysInfoLine() string {
	var parts []string
	if m.info.Hostname != "" {
		parts = append(parts, m.info.Hostname)
	}
	if m.info.CPUModel != "" {
		parts = append(parts, fmt.Sprintf("%s (%dc/%dt)",
			m.info.CPUModel, m.info.PhysicalCores, m.info.LogicalCores))
	}
	if m.info.TotalMemory > 0 {
		mem := formatBytes(m.info.TotalMemory)
		if m.info.MemoryFrequency > 0 {
			mem += fmt.Sprintf(" @ %.0f MHz", m.info.MemoryFrequency)
		}
		parts = append(parts, mem)
	}
	parts = append(parts, m.info.GPUNames...)
	return strings.Join(parts, " · ")
}

func (m RootModel) metricsView() string {
	snap := m.core.LatestMetrics()
	if snap == nil {
		return PanelStyle.Render(LabelStyle.Render("waiting for first sample..."))
	}

	unit := m.core.UnitMode().String()
	refs := m.core.RateRefs()
	var b strings.Builder

	if snap.CPU.Available {
		fmt.Fprintf(&b, "%s %s %5.1f%%  %s\n",
			LabelStyle.Render("CPU "),
			bar(snap.CPU.UsagePercent, 100, 20),
			snap.CPU.UsagePercent,
			LabelStyle.Render(fmt.Sprintf("%.0f MHz", snap.CPU.FrequencyMHz)))
	} else {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("CPU "), AlertStyle.Render("n/a"))
	}

	if snap.Memory.Available {
		fmt.Fprintf(&b, "%s %s %5.1f%%  %s/%s\n",
			LabelStyle.Render("Mem "),
			bar(snap.Memory.UsedPercent, 100, 20),
			snap.Memory.UsedPercent,
			ValueStyle.Render(formatBytes(snap.Memory.Used)),
			LabelStyle.Render(formatBytes(snap.Memory.Total)))
	}

	if snap.Net.Available {
		fmt.Fprintf(&b, "%s ↓ %s %s  ↑ %s %s\n",
			LabelStyle.Render("Net "),
			bar(snap.Net.RecvBytesPerSec, refs.NetRecv, 10),
			ValueStyle.Render(formatRate(m.core.DisplayRate(snap.Net.RecvBytesPerSec), unit)),
			bar(snap.Net.SentBytesPerSec, refs.NetSent, 10),
			ValueStyle.Render(formatRate(m.core.DisplayRate(snap.Net.SentBytesPerSec), unit)))
	}

	if snap.Disk.Available {
		fmt.Fprintf(&b, "%s R %s %s  W %s %s\n",
			LabelStyle.Render("Disk"),
			bar(snap.Disk.ReadBytesPerSec, refs.DiskRead, 10),
			ValueStyle.Render(formatRate(m.core.DisplayRate(snap.Disk.ReadBytesPerSec), unit)),
			bar(snap.Disk.WriteBytesPerSec, refs.DiskWrite, 10),
			ValueStyle.Render(formatRate(m.core.DisplayRate(snap.Disk.WriteBytesPerSec), unit)))
	}

	for _, g := range snap.GPU {
		if g.Status != gpu.StatusOK {
			fmt.Fprintf(&b, "%s %s %s\n",
				LabelStyle.Render("GPU "), g.Name, AlertStyle.Render(g.Status.String()))
			continue
		}
		fmt.Fprintf(&b, "%s %s %5.1f%%  %s/%s  %.0f°C\n",
			LabelStyle.Render("GPU "),
			bar(g.Utilization, 100, 20),
			g.Utilization,
			ValueStyle.Render(formatBytes(g.MemoryUsed)),
			LabelStyle.Render(formatBytes(g.MemoryTotal)),
			g.Temperature)
	}

	return PanelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m RootModel) footerView() string {
	help := "q quit · space pause · / filter · enter expand threads · u units"
	if m.filtering {
		return m.filter.View()
	}
	return LabelStyle.Render(help)
}

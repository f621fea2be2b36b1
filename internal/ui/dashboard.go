package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/scan"
)

// resultMsg delivers one correlated result into the Bubble Tea loop.
type resultMsg scan.Result

// stopMsg ends the program when the scan session is over.
type stopMsg struct{}

// Dashboard is the live scan view: the latest correlated frame plus
// running totals, updated as results arrive.
type Dashboard struct {
	target string

	spin    spinner.Model
	latest  scan.Result
	count   int
	rssiMin int16
	rssiMax int16
}

// NewDashboard creates the model for a scan against the given target
// identity.
func NewDashboard(target string) Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = GoodStyle
	return Dashboard{target: target, spin: s}
}

// Init implements tea.Model
func (m Dashboard) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case resultMsg:
		res := scan.Result(msg)
		m.latest = res
		m.count++
		if m.count == 1 || res.RSSI < m.rssiMin {
			m.rssiMin = res.RSSI
		}
		if m.count == 1 || res.RSSI > m.rssiMax {
			m.rssiMax = res.RSSI
		}
		return m, nil
	case stopMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spin, cmd = m.spin.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m Dashboard) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("LIVE SCAN"))
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render("target: " + m.target))
	b.WriteString("\n\n")

	if m.count == 0 {
		b.WriteString(fmt.Sprintf("  %s waiting for %s...\n", m.spin.View(), m.target))
		b.WriteString("\n" + SubtitleStyle.Render("press q to stop"))
		return BorderStyle.Render(b.String())
	}

	writeRow := func(key, value string) {
		b.WriteString("  " + KeyStyle.Render(key) + value + "\n")
	}

	writeRow("Packets:", ValueStyle.Render(fmt.Sprintf("%d", m.count)))
	if m.latest.PayloadFound {
		writeRow("Counter:", ValueStyle.Render(fmt.Sprintf("%d", m.latest.Counter)))
		writeRow("Delta:", renderDelta(m.latest.DeltaMs))
		writeRow("Power code:", ValueStyle.Render(adv.CodeString(m.latest.PowerCode)))
	} else {
		writeRow("Payload:", WarnStyle.Render("absent"))
	}
	writeRow("RSSI:", renderRSSI(m.latest.RSSI))
	writeRow("RSSI range:", ValueStyle.Render(fmt.Sprintf("%d .. %d dBm", m.rssiMin, m.rssiMax)))
	if m.latest.TxPowerAD != adv.TxPowerAbsent {
		writeRow("TX power:", ValueStyle.Render(fmt.Sprintf("%d dBm", m.latest.TxPowerAD)))
	}

	b.WriteString("\n" + SubtitleStyle.Render("press q to stop"))
	return BorderStyle.Render(b.String())
}

func renderDelta(deltaMs int64) string {
	s := fmt.Sprintf("%d ms", deltaMs)
	if deltaMs < 0 || deltaMs > 10000 {
		// Clock skew territory; flag it but keep showing the number.
		return WarnStyle.Render(s + " (clock skew?)")
	}
	return ValueStyle.Render(s)
}

func renderRSSI(rssi int16) string {
	s := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return GoodStyle.Render(s)
	case rssi >= -80:
		return ValueStyle.Render(s)
	default:
		return WarnStyle.Render(s)
	}
}

// RunDashboard drives the live view until ctx is done, the results
// channel closes, or the user quits. Results must keep flowing while the
// dashboard runs; the forwarding goroutine drains them either way.
func RunDashboard(ctx context.Context, target string, results <-chan scan.Result) error {
	p := tea.NewProgram(NewDashboard(target))

	go func() {
		for {
			select {
			case <-ctx.Done():
				p.Send(stopMsg{})
				return
			case res, ok := <-results:
				if !ok {
					p.Send(stopMsg{})
					return
				}
				p.Send(resultMsg(res))
			}
		}
	}()

	_, err := p.Run()
	return err
}

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdpd/internal/description"
	"github.com/muurk/ssdpd/internal/discovery"
	"github.com/muurk/ssdpd/internal/ui"
)

// ScanFunc runs one search for target.
type ScanFunc func(ctx context.Context, target string) ([]*discovery.Device, error)

// DescribeFunc fetches the description behind a LOCATION.
type DescribeFunc func(ctx context.Context, location string) (*description.Description, error)

// Options configure the browser
type Options struct {
	Context  context.Context
	Scan     ScanFunc
	Describe DescribeFunc

	// Target is the initial search target
	Target string

	// Timeout is the expected length of one scan, used for the progress bar
	Timeout time.Duration

	// Interval re-runs the search after each completed scan; zero disables it
	Interval time.Duration
}

// Messages for async operations
type scanStartMsg struct{}
type scanCompleteMsg struct {
	devices []*discovery.Device
	err     error
}
type rescanMsg struct{ gen int }
type describeMsg struct {
	location string
	desc     *description.Description
	err      error
}

// browserKeyMap defines key bindings for the device list
type browserKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Target key.Binding
	Filter key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k browserKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Target, k.Filter, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k browserKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Target, k.Filter, k.Quit},
	}
}

// editKeyMap defines key bindings while editing the search target
type editKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (k editKeyMap) ShortHelp() []key.Binding { return []key.Binding{k.Confirm, k.Cancel} }

func (k editKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

// detailKeyMap defines key bindings for the device detail view
type detailKeyMap struct {
	Back key.Binding
	Quit key.Binding
}

func (k detailKeyMap) ShortHelp() []key.Binding { return []key.Binding{k.Back, k.Quit} }

func (k detailKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device *discovery.Device
}

func (d deviceItem) FilterValue() string {
	return d.device.USN + " " + d.device.ServiceType + " " + d.device.IP
}

func (d deviceItem) Title() string { return d.device.USN }

func (d deviceItem) Description() string {
	return fmt.Sprintf("%s • %s • %s", d.device.ServiceType, d.device.IP, d.device.Source)
}

// deviceDelegate renders one device per three lines
type deviceDelegate struct {
	width int
}

func (d deviceDelegate) Height() int { return 3 }

func (d deviceDelegate) Spacing() int { return 1 }

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	di, ok := item.(deviceItem)
	if !ok {
		return
	}

	title := di.Title()
	if index == m.Index() {
		title = SelectedStyle.Render("→ " + title)
	} else {
		title = "  " + title
	}

	location := di.device.Location
	if location == "" {
		location = di.device.BaseURL()
	}
	width := max(d.width-4, 20)
	body := lipgloss.NewStyle().Foreground(ui.MutedColor).PaddingLeft(4).MaxWidth(width)

	fmt.Fprintf(w, "%s\n%s\n%s", title, body.Render(di.Description()), body.Render(location))
}

// BrowserModel is the interactive device browser
type BrowserModel struct {
	opts Options

	// Scan state
	Scanning  bool
	ScanStart time.Time
	LastScan  time.Time
	Target    string
	Err       error
	gen       int

	Devices list.Model

	// Detail view
	Detail       *discovery.Device
	Descriptions map[string]*description.Description
	DescribeErrs map[string]error

	// Target editing
	Editing     bool
	TargetInput textinput.Model

	// UI state
	Width    int
	Height   int
	Spinner  spinner.Model
	Progress progress.Model
	Help     help.Model
	Keys     browserKeyMap
	EditKeys editKeyMap
	ViewKeys detailKeyMap
}

// NewBrowserModel creates a browser. Scan is required; Describe may be nil.
func NewBrowserModel(opts Options) BrowserModel {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Target == "" {
		opts.Target = "ssdp:all"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = discovery.DefaultScanTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "ssdp:all"
	input.CharLimit = 256
	input.Width = 50

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	devices := list.New([]list.Item{}, deviceDelegate{width: ui.MinTerminalWidth}, ui.MinTerminalWidth, 20)
	devices.Title = "Discovered Devices"
	devices.SetShowStatusBar(true)
	devices.SetShowHelp(false)
	devices.SetFilteringEnabled(true)
	devices.DisableQuitKeybindings()
	devices.Styles.Title = TitleStyle

	return BrowserModel{
		opts:         opts,
		Target:       opts.Target,
		Devices:      devices,
		Descriptions: make(map[string]*description.Description),
		DescribeErrs: make(map[string]error),
		TargetInput:  input,
		Spinner:      s,
		Progress:     bar,
		Help:         help.New(),
		Keys: browserKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
			Rescan: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
			Target: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "search target")),
			Filter: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
			Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		EditKeys: editKeyMap{
			Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
			Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		},
		ViewKeys: detailKeyMap{
			Back: key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
	}
}

// Init starts the first scan
func (m BrowserModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.scanCmd(),
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case m.Editing:
			return m.updateEditMode(msg)
		case m.Detail != nil:
			return m.updateDetailMode(msg)
		}
		return m.updateNormalMode(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Devices.SetDelegate(deviceDelegate{width: msg.Width})
		m.Devices.SetSize(max(msg.Width-4, 20), max(msg.Height-8, 5))
		return m, nil

	case scanStartMsg:
		m.Scanning = true
		m.ScanStart = time.Now()
		return m, nil

	case scanCompleteMsg:
		m.Scanning = false
		m.LastScan = time.Now()
		m.Err = msg.err
		items := make([]list.Item, len(msg.devices))
		for i, d := range msg.devices {
			items[i] = deviceItem{device: d}
		}
		cmds := []tea.Cmd{m.Devices.SetItems(items)}

		m.gen++
		if m.opts.Interval > 0 {
			gen := m.gen
			cmds = append(cmds, tea.Tick(m.opts.Interval, func(time.Time) tea.Msg {
				return rescanMsg{gen: gen}
			}))
		}
		return m, tea.Batch(cmds...)

	case rescanMsg:
		// Stale ticks from an earlier scan are dropped.
		if msg.gen != m.gen || m.Scanning || m.Editing {
			return m, nil
		}
		return m.startScan()

	case describeMsg:
		if msg.err != nil {
			m.DescribeErrs[msg.location] = msg.err
		} else {
			m.Descriptions[msg.location] = msg.desc
			delete(m.DescribeErrs, msg.location)
		}
		return m, nil

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	if !m.Scanning && !m.Editing {
		m.Devices, cmd = m.Devices.Update(msg)
	}
	return m, cmd
}

// updateNormalMode handles keyboard input in the device list
func (m BrowserModel) updateNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	// While the filter prompt is open every key belongs to it.
	if m.Devices.FilterState() == list.Filtering {
		m.Devices, cmd = m.Devices.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Rescan):
		if m.Scanning {
			return m, nil
		}
		return m.startScan()

	case key.Matches(msg, m.Keys.Target):
		m.Editing = true
		m.TargetInput.SetValue(m.Target)
		return m, m.TargetInput.Focus()

	case key.Matches(msg, m.Keys.Enter):
		item, ok := m.Devices.SelectedItem().(deviceItem)
		if !ok {
			return m, nil
		}
		m.Detail = item.device
		return m, m.describeCmd(item.device.Location)
	}

	if m.Scanning {
		return m, nil
	}
	m.Devices, cmd = m.Devices.Update(msg)
	return m, cmd
}

// updateEditMode handles keyboard input while editing the search target
func (m BrowserModel) updateEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.EditKeys.Cancel):
		m.Editing = false
		m.TargetInput.Blur()
		return m, nil

	case key.Matches(msg, m.EditKeys.Confirm):
		if value := strings.TrimSpace(m.TargetInput.Value()); value != "" {
			m.Target = value
		}
		m.Editing = false
		m.TargetInput.Blur()
		if m.Scanning {
			return m, nil
		}
		return m.startScan()
	}

	m.TargetInput, cmd = m.TargetInput.Update(msg)
	return m, cmd
}

// updateDetailMode handles keyboard input in the detail view
func (m BrowserModel) updateDetailMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ViewKeys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.ViewKeys.Back):
		m.Detail = nil
	}
	return m, nil
}

func (m BrowserModel) startScan() (tea.Model, tea.Cmd) {
	m.Scanning = true
	m.ScanStart = time.Now()
	m.Err = nil
	return m, tea.Batch(m.scanCmd(), m.Spinner.Tick)
}

// scanCmd performs one search off the UI goroutine
func (m BrowserModel) scanCmd() tea.Cmd {
	scan, ctx, target := m.opts.Scan, m.opts.Context, m.Target
	return func() tea.Msg {
		devices, err := scan(ctx, target)
		return scanCompleteMsg{devices: devices, err: err}
	}
}

// describeCmd fetches a description unless it is cached or unavailable
func (m BrowserModel) describeCmd(location string) tea.Cmd {
	if location == "" || m.opts.Describe == nil {
		return nil
	}
	if _, ok := m.Descriptions[location]; ok {
		return nil
	}
	describe, ctx := m.opts.Describe, m.opts.Context
	return func() tea.Msg {
		desc, err := describe(ctx, location)
		return describeMsg{location: location, desc: desc, err: err}
	}
}

// View renders the browser
func (m BrowserModel) View() string {
	width := m.Width
	if width == 0 {
		width = ui.MinTerminalWidth
	}

	var content, helpText string
	switch {
	case m.Editing:
		content = m.renderEditor()
		helpText = m.Help.View(m.EditKeys)
	case m.Detail != nil:
		content = m.renderDetail()
		helpText = m.Help.View(m.ViewKeys)
	case m.Scanning:
		content = m.renderScanning(width)
		helpText = m.Help.View(m.Keys)
	default:
		content = m.renderResults()
		helpText = m.Help.View(m.Keys)
	}

	return RenderContainer(content, helpText, width, m.Height)
}

// renderScanning renders the centered progress display
func (m BrowserModel) renderScanning(width int) string {
	elapsed := time.Since(m.ScanStart)
	fraction := min(1.0, float64(elapsed)/float64(m.opts.Timeout))

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(m.Spinner.View()+" SEARCHING FOR DEVICES"),
		SubtitleStyle.Render("M-SEARCH "+m.Target),
		"",
		m.Progress.ViewAs(fraction),
		"",
		SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds", int(elapsed.Seconds()))),
		"",
	)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the device list or an empty or error message
func (m BrowserModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Search failed: %v", m.Err)))
		b.WriteString("\n\n")
		m.writeTroubleshooting(&b)

	case len(m.Devices.Items()) == 0:
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No devices answered " + m.Target))
		b.WriteString("\n\n")
		m.writeTroubleshooting(&b)

	default:
		b.WriteString(m.Devices.View())
		if !m.LastScan.IsZero() {
			b.WriteString("\n")
			b.WriteString(SubtitleStyle.Render("  Last scan " + m.LastScan.Format("15:04:05") + " for " + m.Target))
		}
	}
	return b.String()
}

func (m BrowserModel) writeTroubleshooting(b *strings.Builder) {
	b.WriteString("  Troubleshooting:\n")
	for _, hint := range ui.SearchTroubleshooting {
		b.WriteString("    • " + hint + "\n")
	}
}

// renderDetail renders the selected device and its description
func (m BrowserModel) renderDetail() string {
	d := m.Detail
	var b strings.Builder

	b.WriteString(TitleStyle.Render(d.USN))
	b.WriteString("\n")
	b.WriteString(RenderField("Type", d.ServiceType))
	b.WriteString(RenderField("Location", d.Location))
	b.WriteString(RenderField("Server", d.Server))
	b.WriteString(RenderField("Address", d.IP))
	b.WriteString(RenderField("Hostname", d.Hostname))
	b.WriteString(RenderField("Cache", d.CacheControl))
	b.WriteString(RenderField("Source", string(d.Source)))
	b.WriteString(RenderField("Seen", d.DiscoveredAt.Format("15:04:05")))
	b.WriteString("\n")

	if d.Location == "" || m.opts.Describe == nil {
		return b.String()
	}

	desc, ok := m.Descriptions[d.Location]
	switch {
	case ok:
		b.WriteString(SubtitleStyle.Render("  Device description"))
		b.WriteString("\n")
		b.WriteString(RenderField("Name", desc.FriendlyName))
		b.WriteString(RenderField("Manufacturer", desc.Manufacturer))
		b.WriteString(RenderField("Model", strings.TrimSpace(desc.ModelName+" "+desc.ModelNumber)))
		b.WriteString(RenderField("Device type", desc.DeviceType))
		b.WriteString(RenderField("UDN", desc.UDN))
		for _, svc := range desc.Services {
			b.WriteString(RenderField("Service", svc.ServiceType))
		}
	case m.DescribeErrs[d.Location] != nil:
		b.WriteString(RenderError(fmt.Sprintf("Description unavailable: %v", m.DescribeErrs[d.Location])))
	default:
		b.WriteString(SubtitleStyle.Render("  " + m.Spinner.View() + " Fetching description..."))
	}
	return b.String()
}

// renderEditor renders the search target prompt
func (m BrowserModel) renderEditor() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render("  Search target (ssdp:all, upnp:rootdevice, uuid:..., urn:...)"))
	b.WriteString("\n\n  ST: ")
	b.WriteString(m.TargetInput.View())
	b.WriteString("\n")
	return b.String()
}

// SelectedDevice returns the device shown in the detail view, if any
func (m BrowserModel) SelectedDevice() *discovery.Device {
	return m.Detail
}

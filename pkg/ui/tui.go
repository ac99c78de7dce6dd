// Package ui provides the Bubble Tea TUI for the gas keeper.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/gas-keeper/business/keeper/domain"
)

// ConnectionInfo holds connection state and latency.
type ConnectionInfo struct {
	Connected bool
	Latency   time.Duration
	LastSeen  time.Time
}

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// eventRow is a rendered lifecycle event for the feed.
type eventRow struct {
	Timestamp time.Time
	Type      domain.EventType
	Summary   string
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	keys KeyMap

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready        bool
	quitting     bool
	width        int
	height       int
	currentBlock uint64
	networkGwei  string
	contractGwei string
	engineState  domain.EngineState
	pendingTx    string
	pendingTgt   string
	pendingTry   uint32

	connectionState map[string]*ConnectionInfo
	lastUpdate      time.Time
	errors          []ErrorEntry // Persistent error panel (last 3)
	logs            []string     // Recent log messages
	events          []eventRow   // Lifecycle event feed

	// Stats
	blocksSeen uint64
	decisions  uint64
	updates    uint64

	// Startup state
	startupComplete bool
	startupSteps    map[string]*StartupStep
	startupTime     time.Time
}

// New creates a new TUI model.
func New() Model {
	now := time.Now()
	return Model{
		keys:         DefaultKeyMap(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		engineState:  domain.StateIdle,
		connectionState: map[string]*ConnectionInfo{
			"Ethereum": {Connected: false},
		},
		logs:   make([]string, 0, 10),
		errors: make([]ErrorEntry, 0, 3),
		events: make([]eventRow, 0, 50),
		startupSteps: map[string]*StartupStep{
			"config":   {Name: "Loading configuration", Status: "pending"},
			"ethereum": {Name: "Connecting to Ethereum", Status: "pending"},
			"contract": {Name: "Reading paymaster contract", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Always allow quit
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.phase = PhaseStartup
			m.startupTime = time.Now()
			// Trigger callback directly (don't use Send() from within Update)
			if OnStartModules != nil {
				go OnStartModules()
			}
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.events = m.events[:0]
			m.errors = make([]ErrorEntry, 0, 3)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		// Check if welcome timeout has elapsed
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.phase = PhaseStartup
			m.startupTime = time.Now()
			if OnStartModules != nil {
				go OnStartModules()
			}
		}
		return m, tickCmd()

	case EventMsg:
		m.applyEvent(msg.Event)
		m.lastUpdate = time.Now()

	case BlockMsg:
		m.currentBlock = msg.Number
		m.blocksSeen++
		m.lastUpdate = time.Now()

	case PricesMsg:
		m.networkGwei = msg.NetworkGwei
		m.contractGwei = msg.ContractGwei
		if m.startupSteps["contract"] != nil {
			m.startupSteps["contract"].Status = "done"
		}
		m.lastUpdate = time.Now()

	case StateMsg:
		m.engineState = msg.State
		m.pendingTx = msg.TxHash
		m.pendingTgt = msg.Target
		m.pendingTry = msg.Attempt

	case ConnectionStatusMsg:
		m.connectionState[msg.Name] = &ConnectionInfo{
			Connected: msg.Connected,
			Latency:   msg.Latency,
			LastSeen:  time.Now(),
		}
		m.lastUpdate = time.Now()

		stepKey := strings.ToLower(msg.Name)
		if step, ok := m.startupSteps[stepKey]; ok {
			if msg.Connected {
				step.Status = "connected"
			} else {
				step.Status = "connecting"
			}
		}
		if m.startupSteps["config"] != nil {
			m.startupSteps["config"].Status = "done"
		}

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{
			Message:   msg.Error.Error(),
			Timestamp: time.Now(),
		})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		allConnected := true
		for _, step := range m.startupSteps {
			if step.Status != "connected" && step.Status != "done" {
				allConnected = false
				break
			}
		}
		if allConnected {
			m.startupComplete = true
		}
	}

	return m, nil
}

// applyEvent folds a lifecycle event into the model.
func (m *Model) applyEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventDecisionMade:
		m.decisions++
		if ev.Action == domain.ActionNone {
			// In-band decisions would flood the feed; the status bar
			// already shows the current prices.
			return
		}
	case domain.EventUpdateSubmitted:
		m.updates++
	}

	m.events = append(m.events, eventRow{
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		Summary:   summarizeEvent(ev),
	})
	if len(m.events) > 50 {
		m.events = m.events[len(m.events)-50:]
	}
}

func summarizeEvent(ev domain.Event) string {
	switch ev.Type {
	case domain.EventDecisionMade:
		return fmt.Sprintf("block #%d: %s → target %s wei", ev.BlockNumber, ev.Action, ev.TargetPrice)
	case domain.EventUpdateSubmitted:
		return fmt.Sprintf("submitted %s (attempt %d)", shortHash(ev.TxHash.Hex()), ev.Attempt)
	case domain.EventUpdateConfirmed:
		return fmt.Sprintf("confirmed %s at block #%d", shortHash(ev.TxHash.Hex()), ev.BlockNumber)
	case domain.EventUpdateRetried:
		return fmt.Sprintf("retry %d at block #%d", ev.Attempt, ev.BlockNumber)
	case domain.EventUpdateTimedOut:
		return fmt.Sprintf("timed out %s at block #%d", shortHash(ev.TxHash.Hex()), ev.BlockNumber)
	case domain.EventUpdateFailed:
		return fmt.Sprintf("failed permanently after %d attempts", ev.Attempt)
	case domain.EventReadError:
		return fmt.Sprintf("read error at block #%d: %v", ev.BlockNumber, ev.Err)
	default:
		return string(ev.Type)
	}
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10] + "…"
	}
	return h
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logLine := fmt.Sprintf("[%s] %s: %s", timestamp, level, message)
	logs = append(logs, logLine)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		// Show startup until first block or all connected
		if m.currentBlock == 0 && !m.startupComplete {
			return m.renderStartupScreen()
		}
		m.phase = PhaseDashboard
		fallthrough
	case PhaseDashboard:
		// Continue to main dashboard
	}

	var b strings.Builder

	title := TitleStyle.Render(" ⛽ Gas Keeper ")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	leftCol := m.renderPricePanel()
	rightCol := m.renderEventFeed()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(BoxStyle.Width(m.width - 4).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(m.width - 4).Render(rightCol))
	}

	b.WriteString("\n\n")

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
		mutedError := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(mutedError.Render(" (c: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(mutedError.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("q: quit • c: clear"))

	return b.String()
}

// renderPricePanel renders the current prices and engine state.
func (m Model) renderPricePanel() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	labelStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("GAS PRICES"))
	sb.WriteString("\n\n")

	network := m.networkGwei
	if network == "" {
		network = "—"
	}
	contract := m.contractGwei
	if contract == "" {
		contract = "—"
	}

	sb.WriteString(fmt.Sprintf("  %s  %s gwei\n", labelStyle.Render("Network: "), network))
	sb.WriteString(fmt.Sprintf("  %s  %s gwei\n", labelStyle.Render("Contract:"), contract))
	sb.WriteString("\n")

	sb.WriteString(headerStyle.Render("ENGINE"))
	sb.WriteString("\n\n")

	switch m.engineState {
	case domain.StateAwaiting:
		sb.WriteString("  " + StatusAwaiting.Render("● awaiting confirmation"))
		sb.WriteString("\n")
		if m.pendingTx != "" {
			sb.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Tx:     "), shortHash(m.pendingTx)))
		}
		if m.pendingTgt != "" {
			sb.WriteString(fmt.Sprintf("  %s %s gwei\n", labelStyle.Render("Target: "), m.pendingTgt))
		}
		if m.pendingTry > 0 {
			sb.WriteString(fmt.Sprintf("  %s %d\n", labelStyle.Render("Attempt:"), m.pendingTry))
		}
	default:
		sb.WriteString("  " + StatusConnected.Render("● idle"))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("  Blocks: %d  Decisions: %d  Updates: %d",
		m.blocksSeen, m.decisions, m.updates)))

	return sb.String()
}

// renderEventFeed renders the lifecycle event feed.
func (m Model) renderEventFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("EVENTS"))
	sb.WriteString("\n\n")

	if len(m.events) == 0 {
		sb.WriteString(mutedStyle.Render("  Waiting for blocks..."))
		return sb.String()
	}

	// Show the most recent events, newest last.
	start := 0
	if len(m.events) > 12 {
		start = len(m.events) - 12
	}
	for _, ev := range m.events[start:] {
		style := mutedStyle
		switch ev.Type {
		case domain.EventUpdateSubmitted, domain.EventUpdateConfirmed:
			style = RaiseValue
		case domain.EventUpdateRetried, domain.EventUpdateTimedOut:
			style = LowerValue
		case domain.EventUpdateFailed, domain.EventReadError:
			style = lipgloss.NewStyle().Foreground(ColorDanger)
		}
		sb.WriteString(style.Render(fmt.Sprintf("  [%s] %s", ev.Timestamp.Format("15:04:05"), ev.Summary)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	mutedStyle := lipgloss.NewStyle().
		Foreground(ColorMuted)

	greenStyle := lipgloss.NewStyle().
		Foreground(ColorSecondary)

	// Animated dots based on time
	elapsed := time.Since(m.welcomeStart)
	dotCount := int(elapsed.Milliseconds()/300) % 4
	dots := strings.Repeat(".", dotCount)

	var sb strings.Builder

	sb.WriteString("\n\n\n\n")

	logo := `
    ██████╗  █████╗ ███████╗    ██╗  ██╗███████╗███████╗██████╗ ███████╗██████╗
   ██╔════╝ ██╔══██╗██╔════╝    ██║ ██╔╝██╔════╝██╔════╝██╔══██╗██╔════╝██╔══██╗
   ██║  ███╗███████║███████╗    █████╔╝ █████╗  █████╗  ██████╔╝█████╗  ██████╔╝
   ██║   ██║██╔══██║╚════██║    ██╔═██╗ ██╔══╝  ██╔══╝  ██╔═══╝ ██╔══╝  ██╔══██╗
   ╚██████╔╝██║  ██║███████║    ██║  ██╗███████╗███████╗██║     ███████╗██║  ██║
    ╚═════╝ ╚═╝  ╚═╝╚══════╝    ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝     ╚══════╝╚═╝  ╚═╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")

	subtitle := "           P A Y M A S T E R   G A S   P R I C E   K E E P E R"
	sb.WriteString(mutedStyle.Render(subtitle))
	sb.WriteString("\n\n\n")

	loading := fmt.Sprintf("                  Initializing%s", dots)
	sb.WriteString(greenStyle.Render(loading))
	sb.WriteString("\n\n")

	hint := "            Press any key to skip, or wait..."
	sb.WriteString(mutedStyle.Render(hint))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the loading/startup screen.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF"))

	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder

	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  ⛽ Gas Keeper"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	stepOrder := []string{"config", "ethereum", "contract"}
	for _, stepKey := range stepOrder {
		step, ok := m.startupSteps[stepKey]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "connected", "done":
			icon = "✓"
			statusText = "Ready"
			style = successStyle
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon = spinners[idx]
			statusText = "Connecting..."
			style = connectingStyle
		case "failed":
			icon = "✗"
			statusText = "Failed"
			style = failedStyle
		default:
			icon = "○"
			statusText = "Pending"
			style = mutedStyle
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			mutedStyle.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(mutedStyle.Render("  Waiting for first Ethereum block..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Block: #%d", m.currentBlock))

	if m.networkGwei != "" {
		parts = append(parts, fmt.Sprintf("Gas: %s gwei", m.networkGwei))
	}

	switch m.engineState {
	case domain.StateAwaiting:
		parts = append(parts, StatusAwaiting.Render("⏳ awaiting"))
	default:
		parts = append(parts, StatusConnected.Render("● idle"))
	}

	for name, info := range m.connectionState {
		var statusStyle lipgloss.Style
		var icon string
		var status string
		if info != nil && info.Connected {
			statusStyle = StatusConnected
			icon = "●"
			if info.Latency > 0 {
				status = fmt.Sprintf("%s (%dms)", name, info.Latency.Milliseconds())
			} else {
				status = name
			}
		} else {
			statusStyle = StatusDisconnected
			icon = "○"
			status = name + " (disconnected)"
		}
		parts = append(parts, statusStyle.Render(icon+" "+status))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
// This is set by main.go to signal when to begin loading modules.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	// Call OnStartModules callback when StartModulesMsg is sent
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}

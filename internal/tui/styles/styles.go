package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Accent     = lipgloss.Color("#3ECF8E")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
	Amber      = lipgloss.Color("#E5A00D")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Accent)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	CacheStyle = lipgloss.NewStyle().
			Foreground(Blue)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Accent)
)

// Raw dataset status characters (unstyled)
const (
	PendingChar  = "○"
	CompleteChar = "✓"
	FailedChar   = "✗"
)

// Pre-rendered status indicators
var (
	PendingDot   = DimStyle.Render(PendingChar)
	CompleteMark = SuccessStyle.Render(CompleteChar)
	FailedMark   = ErrorStyle.Render(FailedChar)
)

// Panel styles
var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SlateLight).
			Padding(0, 1)

	NameStyle = lipgloss.NewStyle().
			Foreground(White).
			Width(18)

	HelpStyle = lipgloss.NewStyle().
			Foreground(DimGray).
			MarginTop(1)
)

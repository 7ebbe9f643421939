package tui

// Color constants for the tally TUI theme
const (
	// Base Colors
	ColorBorder = "#3A3F55" // Grey-blue

	// Text Colors
	ColorPrimaryText   = "#E6EAF2" // Titles, values, user input
	ColorSecondaryText = "#B1B8C7" // Labels
	ColorDisabledText  = "#6D7383" // Muted or empty values
	ColorPlaceholder   = "#B1B8C7"
	ColorHelpText      = "240" // Dark grey for help text

	// Accent Colors (Purple theme)
	ColorAccentMain   = "#7C3AED" // Logo, accent elements, active borders
	ColorAccentBright = "#A78BFA" // Highlights, current step

	// State Colors
	ColorError   = "#EF4444" // Validation errors, exhausted caps
	ColorSuccess = "#22C55E" // Confirmations
	ColorWarning = "#F59E0B" // Due soon, nearly exhausted caps
)

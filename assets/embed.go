package assets

import (
	_ "embed"
	"strings"
)

//go:embed services.txt
var services string

// Services returns the service catalogue shown from the main menu.
func Services() string {
	return strings.TrimSpace(services)
}

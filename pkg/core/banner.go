package core

import "fmt"

// PrintBanner writes the daemon's startup banner to stdout.
func PrintBanner() {
	banner := `
 _   _                      _ ____      _    ____
| \ | | ___ _   _ _ __ __ _| |  _ \    / \  / ___|
|  \| |/ _ \ | | | '__/ _` + "`" + ` | | |_) |  / _ \| |  _
| |\  |  __/ |_| | | | (_| | |  _ <  / ___ \ |_| |
|_| \_|\___|\__,_|_|  \__,_|_|_| \_\/_/   \_\____|

    spreading activation over a persistent code graph
    ───────────────────────────────────────────────
`
	fmt.Print(banner)
}

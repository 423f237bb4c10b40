package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var startTime = time.Now()

var radarFrames = []string{"◜", "◝", "◞", "◟"}
var radarIdx = 0

// termMu serialises all terminal output so the status line save/restore
// sequence is never split by a log write.
var termMu sync.Mutex

var (
	cyan    = color.New(color.FgHiCyan)
	magenta = color.New(color.FgHiMagenta)
	purple  = color.New(color.FgMagenta)
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{}
}

func PrintBanner(w io.Writer) {
	banner := `
   ___   _____________  ____________   ___    ___
  / _ | / ___/ __/ _ \/_  __/ /  / _ | / _ )
 / __ |/ (_ / _// // / / / / /__/ __ |/ _  |
/_/ |_|\___/___/_//_/ /_/ /____/_/ |_/____/

        >> PLAN. EXECUTE. REPORT. <<
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		cyan.Fprintln(w, strings.Repeat(" ", padding)+l)
	}
}

// InitializeTerminal reserves lines 1-11 for the banner and status line.
func InitializeTerminal() {
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders the one-line dashboard.
func StatusLine() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime).Round(time.Second)
	memMB := float64(m.Alloc) / 1024 / 1024

	st := Status()
	lastHB := st.Heartbeat

	pulse := magenta.Sprint("● OFFLINE")
	delta := time.Since(lastHB)
	if delta < 40*time.Second {
		pulse = cyan.Sprint("● HEALTHY")
	} else if delta < 90*time.Second {
		pulse = purple.Sprint("● LAGGING")
	}

	radar := " "
	if st.Phase != PhaseIdle {
		radar = radarFrames[radarIdx]
		radarIdx = (radarIdx + 1) % len(radarFrames)
	}

	displayStep := st.Step
	if displayStep == "" {
		displayStep = "Waiting..."
	}
	if len(displayStep) > 25 {
		displayStep = displayStep[:22] + "..."
	}
	if p := st.Progress(); p != "" {
		displayStep = p + " " + displayStep
	}
	if st.RunID != "" {
		displayStep = shortID(st.RunID) + " " + displayStep
	}

	phaseColor := cyan
	if st.Phase == PhaseExecuting {
		phaseColor = magenta
	}

	return fmt.Sprintf("[%s] %s | %s [%s] %s [%v] [%.1fMB]",
		lastHB.Format("15:04:05"),
		pulse,
		phaseColor.Sprintf("%-9s", st.Phase),
		displayStep,
		purple.Sprint(radar),
		uptime,
		memMB,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func PrintLiveStatus() {
	line := "\033[s\033[10;1H\033[K" + StatusLine() + "\033[u"
	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}

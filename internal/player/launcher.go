// Package player starts the external playback engine for a stream link.
package player

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrNoPlayer is returned when neither a configured nor a detected player could start.
var ErrNoPlayer = errors.New("no media player found")

// player describes a known external player.
type player struct {
	binaries   map[string][]string // GOOS -> executables tried in order
	macApp     string              // app bundle opened with "open -a" on darwin
	offsetFlag string              // "--start=" style, or "-ss " when the value is a separate arg
}

var knownPlayers = map[string]player{
	"mpv": {
		binaries:   map[string][]string{"darwin": {"mpv"}, "linux": {"mpv"}, "windows": {"mpv"}},
		offsetFlag: "--start=",
	},
	"vlc": {
		binaries:   map[string][]string{"darwin": {"vlc"}, "linux": {"vlc"}, "windows": {"vlc"}},
		macApp:     "VLC",
		offsetFlag: "--start-time=",
	},
	"iina": {
		macApp:     "IINA",
		offsetFlag: "--mpv-start=",
	},
	"celluloid": {
		binaries:   map[string][]string{"linux": {"celluloid"}},
		offsetFlag: "--mpv-start=",
	},
	"ffplay": {
		binaries:   map[string][]string{"darwin": {"ffplay"}, "linux": {"ffplay"}, "windows": {"ffplay"}},
		offsetFlag: "-ss ",
	},
	"potplayer": {
		binaries:   map[string][]string{"windows": {"PotPlayerMini64.exe", "PotPlayerMini.exe"}},
		offsetFlag: "/seek=",
	},
}

// detectOrder is the preferred player order per platform.
var detectOrder = map[string][]string{
	"darwin":  {"iina", "vlc", "mpv"},
	"linux":   {"mpv", "vlc", "celluloid", "ffplay"},
	"windows": {"vlc", "mpv", "potplayer"},
}

// Launcher opens stream links in an external player, resuming at an offset
// when the player supports it.
type Launcher struct {
	command   string
	args      []string
	startFlag string
	goos      string
	logger    *slog.Logger

	// process hooks, replaced in tests
	lookPath func(string) (string, error)
	start    func(name string, args ...string) error
	run      func(name string, args ...string) error
}

// NewLauncher creates a launcher. An empty command means auto-detect; an empty
// startFlag is inferred from the command name when it is a known player.
func NewLauncher(command string, args []string, startFlag string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if startFlag == "" && command != "" {
		if p, ok := knownPlayers[playerName(command)]; ok {
			startFlag = p.offsetFlag
			logger.Debug("inferred player offset flag", "player", playerName(command), "flag", startFlag)
		}
	}
	return &Launcher{
		command:   command,
		args:      args,
		startFlag: startFlag,
		goos:      runtime.GOOS,
		logger:    logger,
		lookPath:  exec.LookPath,
		start:     func(name string, args ...string) error { return exec.Command(name, args...).Start() },
		run:       func(name string, args ...string) error { return exec.Command(name, args...).Run() },
	}
}

// Launch starts playback of url at startOffset (zero plays from the start).
// The configured player wins; otherwise known players are tried in platform
// order, then the system URL handler.
func (l *Launcher) Launch(url string, startOffset time.Duration) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("empty stream link")
	}

	if l.command != "" {
		return l.launchConfigured(url, startOffset)
	}

	if name, err := l.launchDetected(url, startOffset); err == nil {
		l.logger.Info("launched detected player", "player", name, "offset", startOffset)
		return nil
	}

	l.logger.Info("no known player found, using system handler", "os", l.goos)
	return l.launchDefault(url)
}

func (l *Launcher) launchConfigured(url string, startOffset time.Duration) error {
	args := append([]string{}, l.args...)
	if startOffset > 0 {
		if l.startFlag == "" {
			l.logger.Warn("cannot resume, configure player.start_flag", "command", l.command, "offset", startOffset)
		}
		args = append(args, offsetArgs(l.startFlag, startOffset)...)
	}

	if l.goos == "darwin" {
		if _, err := l.lookPath(l.command); err != nil {
			return l.start("open", openArgs(l.command, args, url)...)
		}
	}

	l.logger.Info("launching player", "command", l.command, "args", args)
	return l.start(l.command, append(args, url)...)
}

func (l *Launcher) launchDetected(url string, startOffset time.Duration) (string, error) {
	order, ok := detectOrder[l.goos]
	if !ok {
		order = detectOrder["linux"]
	}

	for _, name := range order {
		p := knownPlayers[name]
		args := offsetArgs(p.offsetFlag, startOffset)

		for _, bin := range p.binaries[l.goos] {
			if _, err := l.lookPath(bin); err != nil {
				continue
			}
			if err := l.start(bin, append(args, url)...); err != nil {
				l.logger.Debug("player failed to start", "player", name, "error", err)
				continue
			}
			return name, nil
		}

		if l.goos == "darwin" && p.macApp != "" {
			// open -a fails when the app is not installed, so wait for it.
			if err := l.run("open", openArgs(p.macApp, args, url)...); err == nil {
				return name, nil
			}
		}
	}
	return "", ErrNoPlayer
}

func (l *Launcher) launchDefault(url string) error {
	var err error
	switch l.goos {
	case "darwin":
		err = l.start("open", url)
	case "windows":
		err = l.start("cmd", "/c", "start", "", url)
	default:
		err = l.start("xdg-open", url)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoPlayer, err)
	}
	return nil
}

// offsetArgs renders the resume flag for startOffset in whole seconds.
func offsetArgs(flag string, startOffset time.Duration) []string {
	if startOffset <= 0 || flag == "" {
		return nil
	}
	secs := fmt.Sprintf("%.0f", startOffset.Seconds())
	if strings.HasSuffix(flag, " ") {
		return []string{strings.TrimSuffix(flag, " "), secs}
	}
	return []string{flag + secs}
}

func openArgs(app string, playerArgs []string, url string) []string {
	args := []string{"-n", "-a", app}
	if len(playerArgs) > 0 {
		args = append(args, "--args")
		args = append(args, playerArgs...)
	}
	return append(args, url)
}

func playerName(command string) string {
	base := filepath.Base(command)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

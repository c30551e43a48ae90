// Command asciichat-client joins an ASCII chat session: it dials a
// server, performs the handshake, captures local video/audio, and
// renders whatever the server or other participants send back.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/asciichat/asciichat-go/internal/capture"
	"github.com/asciichat/asciichat-go/internal/client"
	"github.com/asciichat/asciichat-go/internal/cmdutil"
	"github.com/asciichat/asciichat-go/internal/handshake"
	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/internal/knownhosts"
	"github.com/asciichat/asciichat-go/internal/version"
)

var (
	appVersion = "dev"
	commit     = "unknown"
	date       = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	showVersion := false

	connectAddr := cmdutil.EnvString("ASCIICHAT_CONNECT", "")
	hostID := cmdutil.EnvString("ASCIICHAT_HOST_ID", "")
	identityFile := cmdutil.EnvString("ASCIICHAT_IDENTITY_FILE", "")
	identityPassword := cmdutil.EnvString("ASCIICHAT_IDENTITY_PASSWORD", "")
	knownHostsFile := cmdutil.EnvString("ASCIICHAT_KNOWN_HOSTS_FILE", defaultKnownHostsPath())
	password := cmdutil.EnvString("ASCIICHAT_PASSWORD", "")
	displayName := cmdutil.EnvString("ASCIICHAT_DISPLAY_NAME", defaultDisplayName())
	colorMode := cmdutil.EnvString("ASCIICHAT_COLOR_MODE", "mono")
	width, err := cmdutil.EnvInt("ASCIICHAT_WIDTH", 80)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_WIDTH: %v\n", err)
		return 2
	}
	height, err := cmdutil.EnvInt("ASCIICHAT_HEIGHT", 24)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_HEIGHT: %v\n", err)
		return 2
	}
	enableVideo, err := cmdutil.EnvBool("ASCIICHAT_ENABLE_VIDEO", true)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_ENABLE_VIDEO: %v\n", err)
		return 2
	}
	enableAudio, err := cmdutil.EnvBool("ASCIICHAT_ENABLE_AUDIO", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_ENABLE_AUDIO: %v\n", err)
		return 2
	}
	renderFPS, err := cmdutil.EnvInt("ASCIICHAT_RENDER_FPS", 30)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_RENDER_FPS: %v\n", err)
		return 2
	}
	captureFPS, err := cmdutil.EnvInt("ASCIICHAT_CAPTURE_FPS", 30)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_CAPTURE_FPS: %v\n", err)
		return 2
	}
	maxFrameBytes, err := cmdutil.EnvInt("ASCIICHAT_MAX_FRAME_BYTES", 4<<20)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_MAX_FRAME_BYTES: %v\n", err)
		return 2
	}
	snapshotMode, err := cmdutil.EnvBool("ASCIICHAT_SNAPSHOT_MODE", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_SNAPSHOT_MODE: %v\n", err)
		return 2
	}
	syntheticSource, err := cmdutil.EnvBool("ASCIICHAT_SYNTHETIC_SOURCE", false)
	if err != nil {
		fmt.Fprintf(stderr, "invalid ASCIICHAT_SYNTHETIC_SOURCE: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("asciichat-client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&connectAddr, "connect", connectAddr, "server address to dial, host:port (env: ASCIICHAT_CONNECT)")
	fs.StringVar(&hostID, "host-id", hostID, "known-hosts identifier for the server (default: --connect) (env: ASCIICHAT_HOST_ID)")
	fs.StringVar(&identityFile, "identity-file", identityFile, "client identity key file, generated with asciichat-keygen (required) (env: ASCIICHAT_IDENTITY_FILE)")
	fs.StringVar(&identityPassword, "identity-password", identityPassword, "password unwrapping --identity-file, if it was generated with one (env: ASCIICHAT_IDENTITY_PASSWORD)")
	fs.StringVar(&knownHostsFile, "known-hosts-file", knownHostsFile, "TOFU known-hosts file (env: ASCIICHAT_KNOWN_HOSTS_FILE)")
	fs.StringVar(&password, "password", password, "shared password, if the server requires one (env: ASCIICHAT_PASSWORD)")
	fs.StringVar(&displayName, "display-name", displayName, "name shown to other participants (env: ASCIICHAT_DISPLAY_NAME)")
	fs.StringVar(&colorMode, "color-mode", colorMode, "mono, fg256, bg256, fg24, bg24 (env: ASCIICHAT_COLOR_MODE)")
	fs.IntVar(&width, "width", width, "terminal render width in columns (env: ASCIICHAT_WIDTH)")
	fs.IntVar(&height, "height", height, "terminal render height in rows (env: ASCIICHAT_HEIGHT)")
	fs.BoolVar(&enableVideo, "enable-video", enableVideo, "capture and send local video (env: ASCIICHAT_ENABLE_VIDEO)")
	fs.BoolVar(&enableAudio, "enable-audio", enableAudio, "capture, send, and play audio (env: ASCIICHAT_ENABLE_AUDIO)")
	fs.IntVar(&renderFPS, "render-fps", renderFPS, "terminal render cadence in Hz (env: ASCIICHAT_RENDER_FPS)")
	fs.IntVar(&captureFPS, "capture-fps", captureFPS, "synthetic video source cadence in Hz (env: ASCIICHAT_CAPTURE_FPS)")
	fs.IntVar(&maxFrameBytes, "max-frame-bytes", maxFrameBytes, "maximum accepted payload size in bytes (env: ASCIICHAT_MAX_FRAME_BYTES)")
	fs.BoolVar(&snapshotMode, "snapshot-mode", snapshotMode, "render one composed frame and exit instead of a continuous session (env: ASCIICHAT_SNAPSHOT_MODE)")
	fs.BoolVar(&syntheticSource, "synthetic-source", syntheticSource, "use a synthetic animated video/tone source instead of a real webcam/mic (env: ASCIICHAT_SYNTHETIC_SOURCE)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, version.String(appVersion, commit, date))
		return 0
	}
	if connectAddr == "" {
		fmt.Fprintln(stderr, "missing --connect")
		fs.Usage()
		return 2
	}
	if identityFile == "" {
		fmt.Fprintln(stderr, "missing --identity-file")
		fs.Usage()
		return 2
	}
	if hostID == "" {
		hostID = connectAddr
	}

	ident, err := identity.Load(identityFile, func() (string, error) {
		if identityPassword == "" {
			return "", identity.ErrPasswordRequired
		}
		return identityPassword, nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "loading identity: %v\n", err)
		return 4
	}

	hostStore, err := knownhosts.Load(knownHostsFile)
	if err != nil {
		fmt.Fprintf(stderr, "loading known-hosts file: %v\n", err)
		return 4
	}

	cfg := client.Config{
		ConnectAddr:   connectAddr,
		HostID:        hostID,
		Identity:      ident,
		HostStore:     hostStore,
		Password:      password,
		DisplayName:   displayName,
		ColorMode:     colorMode,
		Width:         width,
		Height:        height,
		Audio:         enableAudio,
		RenderFPS:     renderFPS,
		CaptureFPS:    captureFPS,
		MaxFrameBytes: maxFrameBytes,
		SnapshotMode:  snapshotMode,
		Output:        stdout,
	}
	if (enableVideo || enableAudio) && !syntheticSource {
		fmt.Fprintln(stderr, "no platform webcam/microphone binding is available in this build; pass --synthetic-source to proceed with a generated source")
		return 2
	}
	if enableVideo && syntheticSource {
		cfg.Video = capture.NewSyntheticVideoSource(width*2, height*4, captureFPS)
	}
	if enableAudio && syntheticSource {
		cfg.Mic = capture.NewSyntheticAudioSource(48000)
		cfg.Sink = capture.DiscardAudioSink{}
	}

	c, err := client.Dial(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "connecting: %v\n", err)
		return mapDialErr(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		c.Stop()
	}()

	out := ready{Version: appVersion, Commit: commit, Date: date, Connect: connectAddr, DisplayName: displayName}
	_ = cmdutil.WriteJSON(stdout, out, false)

	if err := c.Run(); err != nil {
		fmt.Fprintf(stderr, "session ended: %v\n", err)
		if errors.Is(err, client.ErrCaptureDevice) {
			return 5
		}
		return 3
	}
	return 0
}

type ready struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Date        string `json:"date"`
	Connect     string `json:"connect"`
	DisplayName string `json:"display_name"`
}

func mapDialErr(err error) int {
	if errors.Is(err, knownhosts.ErrMismatch) || errors.Is(err, handshake.ErrIdentityMismatch) || errors.Is(err, handshake.ErrAuthFailed) {
		return 4
	}
	return 3
}

func defaultDisplayName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "anonymous"
}

func defaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "known_hosts"
	}
	return strings.TrimRight(home, "/") + "/.asciichat/known_hosts"
}

// Command asciichat-keygen generates a long-lived Ed25519 identity key
// file for a server or client, optionally password-protected.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/asciichat/asciichat-go/internal/cmdutil"
	"github.com/asciichat/asciichat-go/internal/identity"
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

type ready struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	KID       string `json:"kid"`
	KeyFile   string `json:"key_file"`
	Protected bool   `json:"protected"`
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	showVersion := false
	kid := cmdutil.EnvString("ASCIICHAT_KEYGEN_KID", "")
	outFile := cmdutil.EnvString("ASCIICHAT_KEYGEN_OUT", "")
	password := cmdutil.EnvString("ASCIICHAT_KEYGEN_PASSWORD", "")
	var overwrite bool

	fs := flag.NewFlagSet("asciichat-keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&kid, "kid", kid, "key id embedded in the identity file (env: ASCIICHAT_KEYGEN_KID)")
	fs.StringVar(&outFile, "out", outFile, "output key file path (env: ASCIICHAT_KEYGEN_OUT)")
	fs.StringVar(&password, "password", password, "wrap the private key with this password (env: ASCIICHAT_KEYGEN_PASSWORD)")
	fs.BoolVar(&overwrite, "overwrite", false, "overwrite an existing key file")
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

	kid = strings.TrimSpace(kid)
	if kid == "" {
		fmt.Fprintln(stderr, "missing --kid")
		fs.Usage()
		return 2
	}
	outFile = strings.TrimSpace(outFile)
	if outFile == "" {
		outFile = kid + "_identity.json"
	}

	if err := cmdutil.RefuseOverwrite(outFile, overwrite); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	ident, err := identity.Generate(kid)
	if err != nil {
		fmt.Fprintf(stderr, "generating identity: %v\n", err)
		return 1
	}
	if err := identity.Save(outFile, ident, password); err != nil {
		fmt.Fprintf(stderr, "saving identity: %v\n", err)
		return 1
	}

	out := ready{
		Version:   appVersion,
		Commit:    commit,
		Date:      date,
		KID:       kid,
		KeyFile:   absOr(outFile),
		Protected: password != "",
	}
	_ = cmdutil.WriteJSON(stdout, out, false)
	return 0
}

func absOr(path string) string {
	a, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return a
}

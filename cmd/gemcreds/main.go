// Credential manager for the exchange portal. Stores the SSO username,
// password, and domain encrypted at rest; the password never appears in
// config files or process arguments.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"gemscout/config"
	"gemscout/vault"
)

func main() {
	configPath := flag.String("config", "gemscout.yaml", "configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config: %v", err)
	}
	v := vault.New(cfg.VaultDir())

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "store"
	}
	switch cmd {
	case "store":
		storeCreds(v)
	case "show":
		showCreds(v)
	case "delete":
		deleteCreds(v)
	default:
		fatal("unknown command %q (want store, show, or delete)", cmd)
	}
}

func storeCreds(v *vault.Vault) {
	in := bufio.NewReader(os.Stdin)

	fmt.Print("portal username: ")
	username, err := readLine(in)
	if err != nil {
		fatal("read username: %v", err)
	}

	fmt.Print("portal password: ")
	password, err := readPassword()
	if err != nil {
		fatal("read password: %v", err)
	}

	fmt.Print("login domain [STUDENT]: ")
	domain, err := readLine(in)
	if err != nil {
		fatal("read domain: %v", err)
	}
	if domain == "" {
		domain = "STUDENT"
	}

	if err := v.Store(vault.Credentials{
		Username: username,
		Password: password,
		Domain:   domain,
	}); err != nil {
		fatal("store: %v", err)
	}
	fmt.Println("credentials stored")
}

func showCreds(v *vault.Vault) {
	creds, err := v.Load()
	if err != nil {
		if errors.Is(err, vault.ErrNoCredentials) {
			fmt.Println("no credentials stored")
			return
		}
		fatal("load: %v", err)
	}
	// The password stays in the vault.
	fmt.Printf("username: %s\ndomain:   %s\n", creds.Username, creds.Domain)
}

func deleteCreds(v *vault.Vault) {
	if err := v.Delete(); err != nil {
		fatal("delete: %v", err)
	}
	fmt.Println("credentials deleted")
}

func readLine(in *bufio.Reader) (string, error) {
	s, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// readPassword reads without echo when stdin is a terminal, and falls back
// to a plain line read when it is piped.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(bufio.NewReader(os.Stdin))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gemcreds: "+format+"\n", args...)
	os.Exit(1)
}

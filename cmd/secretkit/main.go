// Command secretkit seals the Betfair password into a file that laybot reads
// through betfair.encrypted_password_path, and opens it again for checking.
//
//	secretkit seal -out betfair.enc      # reads the password and passphrase from stdin
//	secretkit open -in betfair.enc       # prints the password
//
// The passphrase may also come from LAYBOT_BETFAIR_PASSWORD_KEY.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alanyoungcy/laybot/internal/config"
	"github.com/alanyoungcy/laybot/internal/crypto"
)

const passphraseEnv = config.EnvPrefix + "BETFAIR_PASSWORD_KEY"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "seal":
		err = seal(os.Args[2:], os.Stdin, os.Stdout)
	case "open":
		err = open(os.Args[2:], os.Stdin, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "secretkit: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: secretkit seal -out FILE | secretkit open -in FILE")
}

func seal(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	out := fs.String("out", "betfair.enc", "file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := bufio.NewReader(stdin)
	fmt.Fprint(stdout, "password: ")
	password, err := readLine(in)
	if err != nil {
		return err
	}
	key, err := passphrase(in, stdout)
	if err != nil {
		return err
	}

	sealed, err := crypto.EncryptSecret(password, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "\nsealed password written to %s\n", *out)
	return nil
}

func open(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	in := fs.String("in", "betfair.enc", "file to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pass, err := passphrase(bufio.NewReader(stdin), stdout)
	if err != nil {
		return err
	}
	password, err := crypto.LoadSecret("", *in, pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, password)
	return nil
}

func passphrase(in *bufio.Reader, stdout io.Writer) (string, error) {
	if v := os.Getenv(passphraseEnv); v != "" {
		return v, nil
	}
	fmt.Fprint(stdout, "passphrase: ")
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}

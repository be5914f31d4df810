package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/aveelabs/orchestrator/pkg/config"
)

// runSecrets implements the secrets subcommand:
//
//	orchestrator secrets set  -file secrets.enc NAME
//	orchestrator secrets list -file secrets.enc
func runSecrets(args []string) int {
	fs := flag.NewFlagSet("secrets", flag.ExitOnError)
	file := fs.String("file", "secrets.enc", "Path to encrypted secrets file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: orchestrator secrets [-file path] set NAME | list")
		return 1
	}

	switch rest[0] {
	case "set":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: orchestrator secrets set NAME")
			return 1
		}
		if err := secretsSet(*file, rest[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set secret: %v\n", err)
			return 1
		}
		return 0
	case "list":
		if err := secretsList(*file); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list secrets: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown secrets command %q\n", rest[0])
		return 1
	}
}

// secretsSet stores one secret, creating the file on first use.
func secretsSet(path, name string) error {
	secrets := map[string]string{}
	var password string

	if _, err := os.Stat(path); err == nil {
		password, err = promptPassword("Secrets file password: ", false)
		if err != nil {
			return err
		}
		if err := config.LoadSecretsFile(path, password); err != nil {
			return err
		}
		for _, existing := range config.SecretNames() {
			if value, err := config.GetSecret(existing); err == nil {
				secrets[existing] = value
			}
		}
	} else {
		fmt.Printf("Creating new secrets file at %s\n", path)
		password, err = promptPassword("Choose a password: ", true)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Value for %s: ", name)
	value, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		// Not a terminal: fall back to reading a line from stdin.
		reader := bufio.NewReader(os.Stdin)
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("failed to read value: %w", readErr)
		}
		value = []byte(strings.TrimSpace(line))
	}
	secrets[name] = string(value)

	if err := config.SaveSecretsFile(path, password, secrets); err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s\n", name, path)
	return nil
}

// secretsList prints the names (not values) stored in the file.
func secretsList(path string) error {
	password, err := promptPassword("Secrets file password: ", false)
	if err != nil {
		return err
	}
	if err := config.LoadSecretsFile(path, password); err != nil {
		return err
	}

	for _, name := range config.SecretNames() {
		fmt.Println(name)
	}
	return nil
}

// promptPassword reads a password without echo, with confirmation when
// creating a new file.
func promptPassword(prompt string, confirm bool) (string, error) {
	fmt.Print(prompt)
	first, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !bytes.Equal(first, second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"limbo/internal/infra/config"
	"limbo/internal/plugin/builtin"
)

func runPlugins(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tPERMISSIONS\tDESCRIPTION")
	for _, p := range builtin.Plugins() {
		m := p.Manifest()
		perms := make([]string, len(m.Permissions))
		for i, perm := range m.Permissions {
			perms[i] = string(perm)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Version, strings.Join(perms, ","), m.Description)
	}
	return w.Flush()
}

func runEncrypt(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: limbo encrypt <value>")
	}
	passphrase := os.Getenv(config.ConfigKeyEnv)
	if passphrase == "" {
		return fmt.Errorf("%s is not set", config.ConfigKeyEnv)
	}
	enc, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, config.EncPrefix+enc)
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"

	"deckstream/internal/infra/config"
)

func runEncrypt(args []string, out io.Writer) error {
	c := parseArgs(args)
	if len(c.pos) != 1 {
		return fmt.Errorf("usage: deckstream encrypt <value>")
	}
	passphrase := os.Getenv(config.EnvPrefix + "CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("%sCONFIG_KEY is not set", config.EnvPrefix)
	}
	enc, err := config.EncryptValue(c.pos[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, config.EncPrefix+enc)
	return nil
}

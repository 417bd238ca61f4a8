// Command schema writes the JSON schema of the lotwatch config, used for the embedded
// schema in pkg/config and for editor validation of config files.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/lotwatch/pkg/config"
)

type opts struct {
	Args struct {
		Output string `positional-arg-name:"output" description:"schema file, stdout if \"-\""`
	} `positional-args:"yes"`
}

func main() {
	var o opts
	if _, err := flags.Parse(&o); err != nil {
		os.Exit(1)
	}
	if err := writeSchema(o.Args.Output); err != nil {
		lgr.Fatalf("[ERROR] %v", err)
	}
}

func writeSchema(output string) error {
	data, err := json.MarshalIndent(config.GenerateSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')

	if output == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if output == "" {
		output = "schema.json"
	}
	if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // schema file is not sensitive
		return fmt.Errorf("write %s: %w", output, err)
	}
	lgr.Printf("[INFO] schema written to %s", output)
	return nil
}

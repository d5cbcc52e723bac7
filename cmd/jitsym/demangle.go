package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grafana/jitsym/pkg/symresolve"
)

func demangleNamesCmd(ctx context.Context, conf config, names []string, stdin io.Reader) error {
	d := symresolve.NewDemangler(conf.Resolver.Demangle)
	out := output(ctx)
	if len(names) > 0 {
		for _, name := range names {
			if _, err := fmt.Fprintln(out, d.Demangle(name)); err != nil {
				return err
			}
		}
		return nil
	}
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(out, d.Demangle(scanner.Text())); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// nimbusio-cli is a thin operational client against the gwhttp REST
// boundary: archive, retrieve, destroy, and list commands. Grounded on
// the teacher's cli/commands package (one urfave/cli command per
// operation, a shared flag set for the target cluster), generalized
// from AIStore's bucket/object vocabulary to nimbus.io's flat
// collection/key model.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli"
)

const defaultEndpoint = "http://127.0.0.1:8080"

var (
	endpointFlag = cli.StringFlag{Name: "endpoint", Value: defaultEndpoint, Usage: "gateway HTTP endpoint"}
	userFlag     = cli.StringFlag{Name: "user", Usage: "authenticated user (sent as X-Nimbusio-User)"}
)

func main() {
	app := cli.NewApp()
	app.Name = "nimbusio-cli"
	app.Usage = "archive, retrieve, destroy, and list objects against a nimbus.io gateway"
	app.Flags = []cli.Flag{endpointFlag, userFlag}
	app.Commands = []cli.Command{
		{
			Name:      "archive",
			Usage:     "archive a file under a key",
			ArgsUsage: "KEY FILE",
			Action:    archiveCmd,
		},
		{
			Name:      "retrieve",
			Usage:     "retrieve a key to a file, or - for stdout",
			ArgsUsage: "KEY [FILE]",
			Action:    retrieveCmd,
		},
		{
			Name:      "destroy",
			Usage:     "tombstone a key",
			ArgsUsage: "KEY",
			Action:    destroyCmd,
		},
		{
			Name:      "list",
			Usage:     "list keys by prefix",
			ArgsUsage: "[PREFIX]",
			Action:    listCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nimbusio-cli:", err)
		os.Exit(1)
	}
}

func newRequest(c *cli.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.GlobalString("endpoint")+path, body)
	if err != nil {
		return nil, err
	}
	if user := c.GlobalString("user"); user != "" {
		req.Header.Set("X-Nimbusio-User", user)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return nil
}

func archiveCmd(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: nimbusio-cli archive KEY FILE", 1)
	}
	key, path := c.Args().Get(0), c.Args().Get(1)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := newRequest(c, http.MethodPost, "/data/"+key, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	fmt.Printf("archived %s (%d bytes)\n", key, info.Size())
	return nil
}

func retrieveCmd(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: nimbusio-cli retrieve KEY [FILE]", 1)
	}
	key := c.Args().Get(0)
	dest := "-"
	if c.NArg() > 1 {
		dest = c.Args().Get(1)
	}

	req, err := newRequest(c, http.MethodGet, "/data/"+key, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	out := os.Stdout
	if dest != "-" {
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func destroyCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: nimbusio-cli destroy KEY", 1)
	}
	req, err := newRequest(c, http.MethodDelete, "/data/"+c.Args().Get(0), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func listCmd(c *cli.Context) error {
	prefix := ""
	if c.NArg() > 0 {
		prefix = c.Args().Get(0)
	}
	req, err := newRequest(c, http.MethodGet, "/data/?prefix="+prefix, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

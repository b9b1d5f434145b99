package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/config"
)

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call a node API path with failover and print the JSON response",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "jq expression applied to the response",
			},
			&cli.StringFlag{
				Name:    "body",
				Aliases: []string{"b"},
				Usage:   "JSON request body",
			},
			&cli.StringSliceFlag{
				Name:  "param",
				Usage: "Query parameter as key=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "realtime",
				Usage: "Only use nodes that support the realtime transport",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   30 * time.Second,
				Usage:   "Overall call timeout across every attempt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires METHOD and PATH arguments")
			}

			req := client.Request{
				Method:        strings.ToUpper(c.Args().Get(0)),
				Path:          c.Args().Get(1),
				NeedsRealtime: c.Bool("realtime"),
			}
			if raw := c.String("body"); raw != "" {
				var body any
				if err := json.Unmarshal([]byte(raw), &body); err != nil {
					return fmt.Errorf("invalid --body: %w", err)
				}
				req.Body = body
			}
			if params := c.StringSlice("param"); len(params) > 0 {
				q, err := parseParams(params)
				if err != nil {
					return err
				}
				req.Query = q
			}

			var code *gojq.Code
			if expr := c.String("query"); expr != "" {
				var err error
				if code, err = compileQuery(expr); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			svc, err := newService(c, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			resp, err := client.Call[any](ctx, svc, req)
			if err != nil {
				return fmt.Errorf("call failed: %w", err)
			}

			if code == nil {
				return outputJSON(c.App.Writer, resp)
			}
			return runQuery(c.App.Writer, code, resp)
		},
	}
}

func parseParams(params []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

func compileQuery(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq query %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq query %q: %w", expr, err)
	}
	return code, nil
}

// runQuery writes every value the query yields, one JSON document per line.
func runQuery(w io.Writer, code *gojq.Code, input any) error {
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq query failed: %w", err)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal query result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/spf13/cobra"
)

type socketsResponse struct {
	Sockets []sco.SocketInfo `json:"sockets"`
	Stats   sco.Stats        `json:"stats"`
}

type adaptersResponse struct {
	Adapters []link.AdapterInfo `json:"adapters"`
	Links    int                `json:"links"`
}

func newStatusCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show adapters and sockets of a running scod",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return printStatus(ctx, http.DefaultClient, server, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:9300", "scod diag base URL")
	return cmd
}

func printStatus(ctx context.Context, client *http.Client, server string, w io.Writer) error {
	base := strings.TrimRight(server, "/")
	var adapters adaptersResponse
	if err := getJSON(ctx, client, base+"/adapters", &adapters); err != nil {
		return err
	}
	var sockets socketsResponse
	if err := getJSON(ctx, client, base+"/sockets", &sockets); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADAPTER\tMTU\tLINKS\tUNRESPONSIVE")
	for _, a := range adapters.Adapters {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", a.Addr, a.MTU, a.Links, a.Unresponsive)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SOCKET\tSTATE\tLOCAL\tREMOTE\tMTU\tBACKLOG\tQUEUED")
	for _, s := range sockets.Sockets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\n", s.ID, s.State, s.Local, s.Remote, s.MTU, s.Backlog, s.Queued)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nlinks=%d allocated=%d freed=%d live=%d\n",
		adapters.Links, sockets.Stats.Allocated, sockets.Stats.Freed, sockets.Stats.Live)
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

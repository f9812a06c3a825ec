package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/berith-foundation/chaincore/log"
)

// consoleCommands lists the commands runConsole recognizes, for tab
// completion.
var consoleCommands = []string{"stats", "statsjson", "nodes", "help", "quit", "exit"}

// runConsole is a small interactive admin shell over a running Node,
// grounded on the teacher's console package but reduced to the handful of
// read-only operations this core exposes: everything else (accounts,
// transactions, peers) belonged to the collaborators out of scope here.
func runConsole(n *Node, logger log.Logger) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string
		for _, c := range consoleCommands {
			if strings.HasPrefix(c, prefix) {
				matches = append(matches, c)
			}
		}
		return matches
	})

	fmt.Println("chaincored admin console. Type 'help' for commands, 'quit' to exit.")
	for {
		input, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line.AppendHistory(input)

		switch strings.TrimSpace(input) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println("commands: stats, statsjson, nodes, help, quit")
		case "stats":
			printStats(n)
		case "statsjson":
			if err := printStatsJSON(n); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		case "nodes":
			if err := printNodes(n); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		default:
			fmt.Println("unknown command, try 'help'")
		}
	}
}

func printStats(n *Node) {
	stats := n.Stats()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Lock", "Rank", "Acquisitions", "Contentions", "Deadlock Attempts", "Max Wait"})
	for name, s := range stats.Locks {
		table.Append([]string{
			name,
			s.Rank.String(),
			fmt.Sprintf("%d", s.Acquisitions),
			fmt.Sprintf("%d", s.Contentions),
			fmt.Sprintf("%d", s.DeadlockAttempts),
			fmt.Sprintf("%dns", s.MaxWaitNanos),
		})
	}
	table.Render()

	fmt.Printf("deadlock cycles prevented: %d\n", stats.Deadlock.Prevented)
	fmt.Printf("utxo version=%d conflicts=%d snapshots_cached=%d\n",
		stats.UTXO.Version, stats.UTXO.Conflicts, stats.UTXO.SnapshotsCached)
	fmt.Printf("mining miners=%d\n", stats.Mining.Miners)
}

// printStatsJSON prints the exact wire shape of spec section 6's
// Statistics JSON, the same bytes an embedding HTTP monitor would serve.
func printStatsJSON(n *Node) error {
	out, err := n.StatsJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printNodes(n *Node) error {
	active, err := n.Sessions.ActiveNodes(deadlineFromNow(n.cfg))
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node ID", "API Port", "P2P Port", "Last Seen"})
	for _, rec := range active {
		table.Append([]string{
			rec.NodeID,
			fmt.Sprintf("%d", rec.APIPort),
			fmt.Sprintf("%d", rec.P2PPort),
			fmt.Sprintf("%.0f", rec.LastSeen),
		})
	}
	table.Render()
	return nil
}

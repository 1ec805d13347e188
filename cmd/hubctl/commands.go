// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/instancehub/pkg/client"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List instances",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := apiClient.Instances.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
			return nil
		}
		if len(list) == 0 {
			fmt.Println("No instances. Create one with: hubctl create <name>")
			return nil
		}
		fmt.Println(instanceTable(list))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <instance>",
	Short: "Show an instance and its consoles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		inst, err := apiClient.Instances.Get(cmd.Context(), ref.ID)
		if err != nil {
			return err
		}
		return printInstance(inst)
	},
}

func printInstance(inst *client.Instance) error {
	if jsonOutput {
		printJSON(inst)
		return nil
	}
	fmt.Println(instanceTable([]client.Instance{*inst}))
	if len(inst.Slots) > 0 {
		fmt.Println(slotTable(*inst))
	}
	return nil
}

var createMonitor bool

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := client.KindApp
		if createMonitor {
			kind = client.KindMonitor
		}
		inst, err := apiClient.Instances.Create(cmd.Context(), args[0], kind)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(inst)
			return nil
		}
		fmt.Printf("Created %s (%s) in %s\n", inst.Name, inst.ID, inst.Dir)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <instance> <new-name>",
	Short: "Rename an instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		inst, err := apiClient.Instances.Rename(cmd.Context(), ref.ID, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %s\n", ref.Name, inst.Name)
		return nil
	},
}

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <instance>",
	Short: "Stop an instance and delete it with its directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleteYes && !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete %s and %s?", ref.Name, ref.Dir)) {
			fmt.Println("Aborted")
			return nil
		}
		res, err := apiClient.Instances.Delete(cmd.Context(), ref.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", ref.Name)
		if res.Warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <instance>",
	Short: "Start every command of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		inst, err := apiClient.Instances.Start(cmd.Context(), ref.ID)
		if err != nil {
			return err
		}
		return printInstance(inst)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <instance>",
	Short: "Kill every process of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		inst, err := apiClient.Instances.Stop(cmd.Context(), ref.ID)
		if err != nil {
			return err
		}
		return printInstance(inst)
	},
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid console index %q", s)
	}
	return n, nil
}

var restartCmdCmd = &cobra.Command{
	Use:   "restart-cmd <instance> <index> <command...>",
	Short: "Replace one command and restart its console",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		inst, err := apiClient.Consoles.Restart(cmd.Context(), ref.ID, index, strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		return printInstance(inst)
	},
}

var inputCmd = &cobra.Command{
	Use:   "input <instance> <index> <text...>",
	Short: "Send a line of input to a console",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		return apiClient.Consoles.Input(cmd.Context(), ref.ID, index, strings.Join(args[2:], " "))
	},
}

var (
	consoleSince  int64
	consoleFollow bool
)

var consoleCmd = &cobra.Command{
	Use:   "console <instance> <index>",
	Short: "Print a console's output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		con, err := apiClient.Consoles.Get(cmd.Context(), ref.ID, index, consoleSince)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(con)
			return nil
		}
		fmt.Print(con.Text)
		if !consoleFollow || con.Closed {
			return nil
		}
		return streamConsole(cmd.Context(), ref.ID, index, con.Seq, nil)
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <instance> <index>",
	Short: "Stream a console and forward typed lines as input",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Attached to %s console %d. Ctrl-C detaches.\n", ref.Name, index)
		return streamConsole(cmd.Context(), ref.ID, index, 0, os.Stdin)
	},
}

// streamConsole prints console output until the console closes or the
// user interrupts. Lines read from input are sent to the process.
func streamConsole(ctx context.Context, id string, index int, since int64, input io.Reader) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	stream, err := apiClient.Consoles.Attach(ctx, id, index, since)
	if err != nil {
		return err
	}
	defer stream.Close()

	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	if input != nil {
		go func() {
			scanner := bufio.NewScanner(input)
			for scanner.Scan() {
				if err := stream.Send(scanner.Text()); err != nil {
					return
				}
			}
		}()
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch msg.Type {
		case client.MessageOutput:
			fmt.Print(msg.Text)
		case client.MessageClosed:
			fmt.Fprintln(os.Stderr, "Console closed")
			return nil
		}
	}
}

var alarmIndex int

var alarmClearCmd = &cobra.Command{
	Use:   "alarm-clear <instance>",
	Short: "Clear console alarms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := resolveInstance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		inst, err := apiClient.Consoles.ClearAlarm(cmd.Context(), ref.ID, alarmIndex)
		if err != nil {
			return err
		}
		return printInstance(inst)
	},
}

var (
	fileSetFrom string
	fileRestart bool
)

// fileCommand shows or replaces one of an instance's editable files.
func fileCommand(use, short, name string) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <instance>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := resolveInstance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if fileSetFrom == "" {
				f, err := apiClient.Instances.GetFile(cmd.Context(), ref.ID, name)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(f)
					return nil
				}
				fmt.Print(f.Content)
				return nil
			}

			var content []byte
			if fileSetFrom == "-" {
				content, err = io.ReadAll(os.Stdin)
			} else {
				content, err = os.ReadFile(fileSetFrom)
			}
			if err != nil {
				return err
			}
			if _, err := apiClient.Instances.PutFile(cmd.Context(), ref.ID, name, string(content), fileRestart); err != nil {
				return err
			}
			fmt.Printf("Saved %s of %s\n", name, ref.Name)
			return nil
		},
	}
	c.Flags().StringVar(&fileSetFrom, "set", "", "replace the file with this file's content (- for stdin)")
	c.Flags().BoolVar(&fileRestart, "restart", false, "restart the instance after saving")
	return c
}

var (
	eventTypes    []string
	eventInstance string
	eventLimit    int
	eventFollow   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		instanceID := ""
		if eventInstance != "" {
			ref, err := resolveInstance(ctx, eventInstance)
			if err != nil {
				return err
			}
			instanceID = ref.ID
		}

		if eventFollow {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			pattern := ""
			if len(eventTypes) > 0 {
				pattern = eventTypes[0]
			}
			ch, err := apiClient.Events.Stream(ctx, pattern, instanceID)
			if err != nil {
				return err
			}
			for evt := range ch {
				printEvent(evt)
			}
			return nil
		}

		evts, err := apiClient.Events.List(ctx, &client.ListOptions{
			Limit:    eventLimit,
			Types:    eventTypes,
			Instance: instanceID,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(evts)
			return nil
		}
		for _, evt := range evts {
			printEvent(evt)
		}
		return nil
	},
}

func printEvent(evt client.Event) {
	if jsonOutput {
		printJSON(evt)
		return
	}
	fmt.Printf("%s  %-22s %s %s\n", evt.Timestamp.Local().Format(time.DateTime), evt.Type, evt.Instance, formatPayload(evt.Payload))
}

func formatPayload(p map[string]interface{}) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}

var shutdownYes bool

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop every instance and the daemon",
	Long: `shutdown asks for confirmation when instances are running. Answering
no leaves everything as it is.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShutdown(cmd.Context(), os.Stdin, os.Stdout, shutdownYes)
	},
}

func runShutdown(ctx context.Context, in io.Reader, out io.Writer, yes bool) error {
	summary, err := apiClient.Daemon.ShutdownSummary(ctx)
	if err != nil {
		return err
	}
	if summary.AnyRunning && !yes {
		names := map[string]string{}
		if list, err := apiClient.Instances.List(ctx); err == nil {
			for _, inst := range list {
				names[inst.ID] = inst.Name
			}
		}
		if !confirm(in, out, shutdownQuestion(summary, names)) {
			fmt.Fprintln(out, "Aborted")
			return nil
		}
	}
	if _, err := apiClient.Daemon.Shutdown(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Shutting down")
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client and daemon versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("hubctl %s\n", version)
		v, err := apiClient.Daemon.Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("instancehub %s (API %s)\n", v.Version, v.APIVersion)
		return nil
	},
}

func init() {
	createCmd.Flags().BoolVar(&createMonitor, "monitor", false, "create a file-copy monitor instance")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	consoleCmd.Flags().Int64Var(&consoleSince, "since", 0, "only output after this sequence number")
	consoleCmd.Flags().BoolVarP(&consoleFollow, "follow", "f", false, "keep streaming new output")
	alarmClearCmd.Flags().IntVar(&alarmIndex, "index", -1, "console to clear (default: all)")
	eventsCmd.Flags().StringSliceVar(&eventTypes, "type", nil, "event types, wildcards allowed (e.g. instance.*)")
	eventsCmd.Flags().StringVar(&eventInstance, "instance", "", "only events about this instance")
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 50, "maximum number of events")
	eventsCmd.Flags().BoolVarP(&eventFollow, "follow", "f", false, "stream live events")
	shutdownCmd.Flags().BoolVarP(&shutdownYes, "yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(
		listCmd, statusCmd, createCmd, renameCmd, deleteCmd,
		startCmd, stopCmd, restartCmdCmd, inputCmd,
		consoleCmd, attachCmd, openCmd, alarmClearCmd,
		fileCommand("commands", "Show or replace the command file", client.CommandsFile),
		fileCommand("rules", "Show or replace a monitor's rules file", client.RulesFile),
		eventsCmd, shutdownCmd, versionCmd,
	)
}

// Command taskvm is a thin front end over the task VM core: it loads
// mnemonic source (either from a file or from a named, templated snippet),
// assembles and runs it, and renders the result for a human. The VM core
// itself stays string-in/value-stack-out; everything in this package is a
// collaborator that supplies programs and interprets results.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"taskvm/vm"
)

var log = logrus.WithField("component", "cli")

// probeFieldProgram checks whether a single task id is live by reading its
// title field; T_GET_FIELD fails with TaskNotFoundError for a tombstoned or
// out-of-range id, which Run surfaces as an error the prober below catches.
// The instruction set has no arithmetic opcode (no ADD/MUL), so a task's
// sparse, possibly-non-contiguous live ids cannot be packed into a single
// M_SLICE buffer by an in-VM loop; probing one id per Run keeps every step
// within what the mnemonic language can actually express.
const probeFieldProgram = "PUSH_U32 %d PUSH_U32 0 T_GET_FIELD"

// maxIDProbeSlack bounds how many consecutive tombstoned/unassigned ids
// listTaskIDs will probe before it stops scanning, so a store that once held
// many deleted tasks doesn't force an unbounded scan. Live tasks that sit
// past a run of this many consecutive missing ids are not listed.
const maxIDProbeSlack = 256

func main() {
	app := &cli.App{
		Name:  "taskvm",
		Usage: "assemble and run mnemonic task-VM programs against a persisted task store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "storage",
				Aliases: []string{"s"},
				Value:   "tasks.bin",
				EnvVars: []string{"TASKVM_STORAGE_PATH"},
				Usage:   "path to the persisted task store",
			},
			&cli.StringFlag{
				Name:    "calldata",
				Aliases: []string{"c"},
				Value:   "calldata.toml",
				EnvVars: []string{"TASKVM_CALLDATA_PATH"},
				Usage:   "path to the calldata template TOML file",
			},
			&cli.BoolFlag{
				Name:    "debug",
				EnvVars: []string{"TASKVM_DEBUG"},
				Usage:   "enable debug-level logging of VM dispatch",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			lsCommand,
			showCommand,
			addCommand,
			statusCommand,
			deleteCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("taskvm: command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var lsCommand = &cli.Command{
	Name:  "ls",
	Usage: "list every task in the store",
	Action: func(c *cli.Context) error {
		ids, machine, err := listTaskIDs(c.String("storage"))
		if err != nil {
			return err
		}
		return printTaskTable(machine, ids)
	},
}

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "print a single task's fields",
	ArgsUsage: "<id>",
	Action: func(c *cli.Context) error {
		id, err := parseID(c.Args().First())
		if err != nil {
			return err
		}
		machine, err := vm.New("S_LEN", c.String("storage"))
		if err != nil {
			return err
		}
		if _, err := machine.Run(); err != nil {
			return err
		}
		task, err := machine.PrintTask(id)
		if err != nil {
			return err
		}
		fmt.Printf("id:     %d\ntitle:  %s\nstatus: %s\nbody:   %s\n",
			task.ID, task.Title, statusName(task.Status), task.Instructions)
		return nil
	},
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "create a task",
	ArgsUsage: "<title> [-calldata <template> [args...]]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "calldata",
			Usage: "named calldata.toml template (and its positional args) to use as the task's body",
		},
	},
	Action: func(c *cli.Context) error {
		title := strings.Join(c.Args().Slice(), " ")
		if title == "" {
			return fmt.Errorf("add requires a title")
		}

		instructions := ""
		if parts := c.StringSlice("calldata"); len(parts) > 0 {
			templates, err := loadTemplates(c.String("calldata"))
			if err != nil {
				return err
			}
			instructions, err = templates.lookup(parts[0], parts[1:])
			if err != nil {
				return err
			}
		}

		tpl, err := builtinTemplate(c, "create_task")
		if err != nil {
			return err
		}
		src := expandNamed(tpl, map[string]string{
			"TITLE":        title,
			"STATUS":       "0",
			"INSTRUCTIONS": instructions,
		})
		machine, err := vm.New(src, c.String("storage"))
		if err != nil {
			return err
		}
		if _, err := machine.Run(); err != nil {
			return err
		}
		fmt.Printf("task %q added\n", title)
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "set a task's status",
	ArgsUsage: "<id> <notcomplete|inprogress|complete>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return fmt.Errorf("status requires <id> and a status name")
		}
		id, err := parseID(c.Args().Get(0))
		if err != nil {
			return err
		}
		status, err := parseStatusName(c.Args().Get(1))
		if err != nil {
			return err
		}

		tpl, err := builtinTemplate(c, "set_status")
		if err != nil {
			return err
		}
		src := expandNamed(tpl, map[string]string{
			"ID":     strconv.FormatUint(uint64(id), 10),
			"STATUS": strconv.Itoa(int(status)),
		})
		machine, err := vm.New(src, c.String("storage"))
		if err != nil {
			return err
		}
		if _, err := machine.Run(); err != nil {
			return err
		}
		fmt.Printf("task %d set to %s\n", id, statusName(status))
		return nil
	},
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "delete a task",
	ArgsUsage: "<id>",
	Action: func(c *cli.Context) error {
		id, err := parseID(c.Args().First())
		if err != nil {
			return err
		}
		tpl, err := builtinTemplate(c, "delete_task")
		if err != nil {
			return err
		}
		src := expandNamed(tpl, map[string]string{
			"ID": strconv.FormatUint(uint64(id), 10),
		})
		machine, err := vm.New(src, c.String("storage"))
		if err != nil {
			return err
		}
		if _, err := machine.Run(); err != nil {
			return err
		}
		fmt.Printf("task %d deleted\n", id)
		return nil
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "assemble and run a mnemonic source file, printing the resulting stack",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("run requires a source file path")
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		machine, err := vm.New(string(body), c.String("storage"))
		if err != nil {
			return err
		}
		// RunFast: arbitrary user-supplied source may run a DO/LOOP pushing up
		// to the operand stack's full capacity, so the tight dispatch loop
		// runs with the collector suspended for this command specifically.
		stack, err := machine.RunFast()
		if err != nil {
			return err
		}
		returns, err := machine.Unbox(stack)
		if err != nil {
			return err
		}
		for i, r := range returns {
			fmt.Printf("[%d] %s\n", i, formatReturn(r))
		}
		return nil
	},
}

// builtinTemplate loads the named built-in template from the configured
// calldata.toml.
func builtinTemplate(c *cli.Context, name string) (string, error) {
	templates, err := loadTemplates(c.String("calldata"))
	if err != nil {
		return "", err
	}
	return templates.lookup(name, nil)
}

// listTaskIDs loads the store at path, reads its alive count via S_LEN, then
// probes candidate ids starting at 0 (one fresh VM per probe, since each one
// reloads the same persisted store) until every live id has been found. Ids
// are returned in ascending order, alongside the VM from the final probe (or
// a freshly loaded one if there were zero live tasks) so the caller can
// PrintTask against the same loaded store.
func listTaskIDs(storagePath string) ([]uint32, *vm.VM, error) {
	countVM, err := vm.New("S_LEN", storagePath)
	if err != nil {
		return nil, nil, err
	}
	stack, err := countVM.Run()
	if err != nil {
		return nil, nil, err
	}
	returns, err := countVM.Unbox(stack)
	if err != nil {
		return nil, nil, err
	}
	alive := int(returns[0].U32)
	if alive == 0 {
		return nil, countVM, nil
	}

	var ids []uint32
	var machine *vm.VM
	missesSinceLastHit := 0
	for id := uint32(0); len(ids) < alive && missesSinceLastHit < maxIDProbeSlack; id++ {
		machine, err = vm.New(fmt.Sprintf(probeFieldProgram, id), storagePath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := machine.Run(); err != nil {
			var notFound *vm.TaskNotFoundError
			if errors.As(err, &notFound) {
				missesSinceLastHit++
				continue
			}
			return nil, nil, err
		}
		ids = append(ids, id)
		missesSinceLastHit = 0
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, machine, nil
}

// printTaskTable renders the tasks named by ids (skipping any that no longer
// exist, e.g. tombstoned since listTaskIDs probed it) as a formatted table.
func printTaskTable(machine *vm.VM, ids []uint32) error {
	fmt.Printf("%-4s %-30s %-15s\n", "ID", "Title", "Status")
	fmt.Println(strings.Repeat("-", 50))
	for _, id := range ids {
		task, err := machine.PrintTask(id)
		if err != nil {
			var notFound *vm.TaskNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return err
		}
		fmt.Printf("%-4d %-30s %-15s\n", task.ID, task.Title, statusName(task.Status))
	}
	return nil
}

func statusName(s vm.TaskStatus) string {
	switch s {
	case vm.NotComplete:
		return "Not complete"
	case vm.InProgress:
		return "In Progress"
	case vm.Complete:
		return "Complete"
	default:
		return "Unknown"
	}
}

func parseStatusName(s string) (vm.TaskStatus, error) {
	switch strings.ToLower(s) {
	case "notcomplete":
		return vm.NotComplete, nil
	case "inprogress":
		return vm.InProgress, nil
	case "complete":
		return vm.Complete, nil
	default:
		return 0, fmt.Errorf("unknown status %q (want notcomplete|inprogress|complete)", s)
	}
}

func parseID(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("missing task id")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q: %w", s, err)
	}
	return uint32(n), nil
}

func formatReturn(r vm.Return) string {
	switch r.Kind {
	case vm.ReturnU32:
		return fmt.Sprintf("U32(%d)", r.U32)
	case vm.ReturnString:
		return fmt.Sprintf("String(%q)", r.String)
	case vm.ReturnCallData:
		return fmt.Sprintf("CallData(%q)", r.String)
	case vm.ReturnBool:
		return fmt.Sprintf("Bool(%t)", r.Bool)
	case vm.ReturnMemSlice:
		return fmt.Sprintf("MemSlice(%d,%d)", r.MemOff, r.MemSize)
	default:
		return "Unknown"
	}
}

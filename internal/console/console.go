// Package console is an interactive heap inspector: a small REPL for
// triggering collections and inspecting free-list/occupancy stats while a
// heapvm program runs, grounded on the same kind of "print heap state"
// debugging helper tinygo's runtime keeps behind gcDebug (dumpHeap,
// dumpFreeRangeCounts in gc_blocks.go), but driven interactively instead of
// compiled in behind a debug flag.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-tty"

	"github.com/vmheap/heapgc/internal/heap"
	"github.com/vmheap/heapgc/internal/vm"
)

// Console runs the interactive inspector loop against one heap and engine.
type Console struct {
	h   *heap.Heap
	eng *vm.Engine
	out io.Writer
}

// New returns a Console writing to stdout through a colorable writer, which
// translates ANSI escape sequences on Windows consoles. The inspector's own
// output is plain text.
func New(h *heap.Heap, eng *vm.Engine) *Console {
	return &Console{h: h, eng: eng, out: colorable.NewColorableStdout()}
}

// Run reads commands from the controlling terminal until "quit"/"exit" or
// EOF. Supported commands: stats, classes, gc, dump <path>, help, quit.
func (c *Console) Run() error {
	t, err := tty.Open()
	if err != nil {
		// Not an interactive terminal (e.g. piped input in tests/CI):
		// fall back to line-buffered stdin.
		return c.runOnLines(bufio.NewReader(os.Stdin))
	}
	defer t.Close()
	return c.runOnTTY(t)
}

// runOnTTY reads raw, unechoed keystrokes from an open terminal and
// assembles them into lines, since a *tty.TTY puts the terminal in raw
// mode and reads one rune at a time.
func (c *Console) runOnTTY(t *tty.TTY) error {
	fmt.Fprintln(c.out, "heapvm inspector —", c.h.Identity(), "— type 'help' for commands")
	var line []rune
	fmt.Fprint(c.out, "> ")
	for {
		r, err := t.ReadRune()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch r {
		case '\r', '\n':
			fmt.Fprintln(c.out)
			args, _ := shlex.Split(string(line))
			line = line[:0]
			if len(args) > 0 && c.dispatch(args) {
				return nil
			}
			fmt.Fprint(c.out, "> ")
		case 0x7f, '\b':
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(c.out, "\b \b")
			}
		default:
			line = append(line, r)
			fmt.Fprint(c.out, string(r))
		}
	}
}

func (c *Console) runOnLines(r *bufio.Reader) error {
	fmt.Fprintln(c.out, "heapvm inspector —", c.h.Identity(), "— type 'help' for commands")
	for {
		fmt.Fprint(c.out, "> ")
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		args, err := shlex.Split(line)
		if err != nil || len(args) == 0 {
			continue
		}
		if c.dispatch(args) {
			return nil
		}
	}
}

// dispatch runs one command and reports whether the REPL should exit.
func (c *Console) dispatch(args []string) bool {
	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(c.out, "commands: stats, classes, gc, dump <path>, quit")
	case "stats", "classes":
		c.printStats()
	case "gc":
		c.h.Collect(c.eng)
		fmt.Fprintln(c.out, "collection forced")
	case "dump":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "usage: dump <path>")
			return false
		}
		if err := c.dump(args[1]); err != nil {
			fmt.Fprintln(c.out, "dump failed:", err)
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q\n", args[0])
	}
	return false
}

func (c *Console) printStats() {
	s := c.h.ReadStats()
	heapBytes := bytesize.New(float64(s.HeapWords) * 4)
	freeBytes := bytesize.New(float64(s.FreeWords) * 4)
	fmt.Fprintf(c.out, "allocations=%d collections=%d heap=%s free=%s\n",
		s.Allocations, s.Collections, heapBytes, freeBytes)
}

// dump writes a snapshot report to path, advisory-locked so two inspector
// instances never interleave writes to the same file.
func (c *Console) dump(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("console: locking %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("console: creating %s: %w", path, err)
	}
	defer f.Close()

	s := c.h.ReadStats()
	_, err = fmt.Fprintf(f, "identity=%s allocations=%d collections=%d heap_words=%d free_words=%d\n",
		c.h.Identity(), s.Allocations, s.Collections, s.HeapWords, s.FreeWords)
	return err
}

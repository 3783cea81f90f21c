// Command heapvm loads and runs Intel-HEX bytecode images against the
// heapgc mark/sweep heap manager. It has three subcommands: run, pack, and
// dbg (interactive inspector).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/vmheap/heapgc/internal/config"
	"github.com/vmheap/heapgc/internal/console"
	"github.com/vmheap/heapgc/internal/heap"
	"github.com/vmheap/heapgc/internal/loader"
	"github.com/vmheap/heapgc/internal/pack"
	"github.com/vmheap/heapgc/internal/vm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "pack":
		err = packCmd(os.Args[2:])
	case "dbg":
		err = dbgCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "heapvm:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: heapvm <run|pack|dbg> [flags] ...")
}

// openHeap builds a *heap.Heap and loaded *vm.Engine from a config file and
// an Intel-HEX image path (optionally inside an ar archive member).
func openHeap(configPath, imagePath, member string) (*heap.Heap, *vm.Engine, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if cfg.FreeListClasses != 0 && cfg.FreeListClasses != 32 {
		fmt.Fprintf(os.Stderr, "heapvm: free_list_classes=%d ignored, the heap package fixes K=32\n", cfg.FreeListClasses)
	}

	var body []byte
	if member != "" {
		f, err := os.Open(imagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive %s: %w", imagePath, err)
		}
		defer f.Close()
		members, err := pack.Extract(f)
		if err != nil {
			return nil, nil, err
		}
		raw, ok := members[member]
		if !ok {
			return nil, nil, fmt.Errorf("archive %s has no member %q", imagePath, member)
		}
		img, err := loader.Load(bytes.NewReader(raw))
		if err != nil {
			return nil, nil, err
		}
		body = img.Bytes
	} else {
		f, err := os.Open(imagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening image %s: %w", imagePath, err)
		}
		defer f.Close()
		img, err := loader.Load(f)
		if err != nil {
			return nil, nil, err
		}
		body = img.Bytes
	}

	fail := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "heapvm: fatal: "+format+"\n", args...)
		os.Exit(1)
	}
	h, err := heap.New(cfg.ArenaBytes, fail)
	if err != nil {
		return nil, nil, err
	}
	if err := h.SetHeapStart(cfg.CodeWords); err != nil {
		return nil, nil, err
	}

	eng := vm.New(h)
	img := loader.Image{Bytes: body}
	if err := eng.Emit(wordsToInstrs(img.Words())); err != nil {
		return nil, nil, err
	}
	return h, eng, nil
}

func wordsToInstrs(words []uint32) []vm.Instr {
	out := make([]vm.Instr, len(words))
	copy(out, words)
	return out
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML heap configuration file")
	archive := fs.String("archive", "", "path to an ar archive to load the image from")
	member := fs.String("member", "", "member name within -archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 && *archive == "" {
		return fmt.Errorf("usage: heapvm run [-config file] <image.hex>")
	}

	imagePath := *archive
	memberName := *member
	if *archive == "" {
		imagePath = fs.Arg(0)
	} else if memberName == "" {
		return fmt.Errorf("-archive requires -member")
	}

	h, eng, err := openHeap(*configPath, imagePath, memberName)
	if err != nil {
		return err
	}
	defer h.Close()

	result, err := eng.Run()
	if err != nil {
		return err
	}
	stats := h.ReadStats()
	fmt.Printf("halted: top=%d allocations=%d collections=%d\n", result, stats.Allocations, stats.Collections)
	return nil
}

func packCmd(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	out := fs.String("out", "", "output archive path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: heapvm pack -out archive.a <name=image.hex>...")
	}

	images := make(map[string][]byte)
	for _, arg := range fs.Args() {
		name, path, ok := splitNameValue(arg)
		if !ok {
			return fmt.Errorf("expected name=path, got %q", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		images[name] = data
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	return pack.Bundle(f, images)
}

func dbgCmd(args []string) error {
	fs := flag.NewFlagSet("dbg", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML heap configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: heapvm dbg [-config file] <image.hex>")
	}

	h, eng, err := openHeap(*configPath, fs.Arg(0), "")
	if err != nil {
		return err
	}
	defer h.Close()

	return console.New(h, eng).Run()
}

func splitNameValue(s string) (name, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

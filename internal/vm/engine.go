// Package vm is a minimal bytecode engine: it owns the three register-bank
// roots (Ib, Lb, Ob), emits instructions into the heap's code area, and
// interprets just enough of an instruction set to allocate tagged blocks
// and link them through those roots. The heap package knows nothing about
// instruction encoding or control flow; this engine exists only so
// cmd/heapvm has a real end-to-end program to run against it.
package vm

import (
	"fmt"

	"github.com/vmheap/heapgc/internal/heap"
)

// Op is a single bytecode operation.
type Op byte

const (
	OpHalt Op = iota
	OpPushImm
	OpAllocString
	OpAllocFrame
	OpAllocClosure
	OpDup
	OpSetIb
	OpSetLb
	OpSetOb
	OpStoreAt // pop value, pop block: block[operand] = value
)

// Instr packs an operation and a 24-bit operand into one word, the way the
// heap package packs a block header: operand in bits [8..32), op in bits
// [0..8).
type Instr = heap.Word

// Encode packs op and operand into a single instruction word.
func Encode(op Op, operand uint32) Instr {
	return Instr(operand<<8) | Instr(op)
}

func decode(i Instr) (Op, uint32) {
	return Op(i & 0xFF), uint32(i >> 8)
}

// Engine runs a program of Encode'd instructions against a *heap.Heap,
// implementing heap.Roots so the heap's collector can mark through it.
type Engine struct {
	h *heap.Heap

	ib, lb, ob heap.Addr
	stack      []heap.Addr
}

// New creates an Engine bound to h.
func New(h *heap.Heap) *Engine {
	return &Engine{h: h}
}

// Ib, Lb, Ob implement heap.Roots.
func (e *Engine) Ib() heap.Addr { return e.ib }
func (e *Engine) Lb() heap.Addr { return e.lb }
func (e *Engine) Ob() heap.Addr { return e.ob }

// Emit writes program into the heap's code area, starting at word 0.
func (e *Engine) Emit(program []Instr) error {
	code := e.h.CodeArea()
	if len(program) > len(code) {
		return fmt.Errorf("vm: program of %d words does not fit in a %d word code area", len(program), len(code))
	}
	copy(code, program)
	return nil
}

// Run interprets the program previously written by Emit until it reaches
// OpHalt or the end of the code area, returning the top of the value
// stack, if any.
func (e *Engine) Run() (heap.Addr, error) {
	code := e.h.CodeArea()
	for pc := 0; pc < len(code); pc++ {
		op, operand := decode(code[pc])
		switch op {
		case OpHalt:
			return e.top(), nil
		case OpPushImm:
			// An immediate value: tag it so the marker never follows it as
			// a pointer (see heap.IsPointerWord), by setting its low bit.
			e.push(heap.Addr(operand<<1 | 1))
		case OpAllocString:
			b, err := e.h.Allocate(e, heap.TagString, heap.Word(operand))
			if err != nil {
				return 0, err
			}
			e.push(b)
		case OpAllocFrame:
			b, err := e.h.Allocate(e, heap.TagRegisterFrame, heap.Word(operand))
			if err != nil {
				return 0, err
			}
			e.push(b)
		case OpAllocClosure:
			b, err := e.h.Allocate(e, heap.TagFunction, heap.Word(operand))
			if err != nil {
				return 0, err
			}
			e.push(b)
		case OpDup:
			e.push(e.top())
		case OpSetIb:
			e.ib = e.pop()
		case OpSetLb:
			e.lb = e.pop()
		case OpSetOb:
			e.ob = e.pop()
		case OpStoreAt:
			value := e.pop()
			block := e.pop()
			e.storeField(block, operand, value)
		default:
			return 0, fmt.Errorf("vm: unknown opcode %d at pc=%d", op, pc)
		}
	}
	return e.top(), nil
}

func (e *Engine) push(a heap.Addr) { e.stack = append(e.stack, a) }

func (e *Engine) pop() heap.Addr {
	n := len(e.stack)
	v := e.stack[n-1]
	e.stack = e.stack[:n-1]
	return v
}

func (e *Engine) top() heap.Addr {
	if len(e.stack) == 0 {
		return 0
	}
	return e.stack[len(e.stack)-1]
}

// storeField writes value into block's payload word at the given index.
// This is the only place outside the heap package that writes into the
// heap region, and it only ever writes within a block's own recorded size.
func (e *Engine) storeField(block heap.Addr, index uint32, value heap.Addr) {
	if heap.Word(index) >= e.h.BlockSize(block) {
		return
	}
	e.h.WriteField(block, heap.Word(index), value)
}

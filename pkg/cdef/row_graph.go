package cdef

import (
	"fmt"
	"time"

	"github.com/T3-Labs/edge-av1/pkg/assert"
	"github.com/T3-Labs/edge-av1/pkg/metrics"
)

type TaskKind int

const (
	// TaskBody filters a 64-row unit row except its last two 4x4 rows.
	TaskBody TaskKind = iota
	// TaskTail filters the last two 4x4 rows, which read from the unit row
	// below.
	TaskTail
)

func (k TaskKind) String() string {
	if k == TaskBody {
		return "body"
	}
	return "tail"
}

// Task is one schedulable piece of a frame's CDEF work.
type Task struct {
	Kind    TaskKind
	UnitRow int
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%d)", t.Kind, t.UnitRow)
}

// RowGraph filters a frame while it is being reconstructed. Each unit row r
// (64 luma rows) has a body task that needs row r reconstructed and a tail
// task that needs its body plus row r+1, or only its body for the last row.
// Tasks run on the calling goroutine as soon as they are ready, tail(r-1)
// always before body(r). A RowGraph is not safe for concurrent use.
type RowGraph struct {
	pass runner

	rows4x4       int
	unitRows      int
	reconstructed int
	nextBody      int
	nextTail      int
	completed     []Task
}

// NewRowGraph prepares a row-lagged pass over in. Source must be filled in
// superblock-row order as reported through ApplySuperBlockRow.
func (f *Filter) NewRowGraph(in *Frame) *RowGraph {
	rows, _ := IndexGridSize(in.Rows4x4, in.Columns4x4)
	return &RowGraph{
		pass:      f.newPass(in),
		rows4x4:   in.Rows4x4,
		unitRows:  rows,
		completed: make([]Task, 0, 2*rows),
	}
}

// ApplySuperBlockRow records that the superblock row of sb4x4 4x4 rows
// starting at row4x4 is reconstructed and runs every task that became ready.
// isLastRow marks the final superblock row of the frame. The tasks run by
// this call are returned in execution order.
func (g *RowGraph) ApplySuperBlockRow(row4x4, sb4x4 int, isLastRow bool) []Task {
	assert.Assertf(row4x4 >= 0 && sb4x4 > 0 && sb4x4%Step64x64 == 0, "superblock row %d of %d 4x4 rows", row4x4, sb4x4)
	assert.Assertf(row4x4 == g.reconstructed*Step64x64 || row4x4 >= g.rows4x4,
		"superblock row %d out of order, expected %d", row4x4, g.reconstructed*Step64x64)

	start := time.Now()
	end := min((row4x4+sb4x4+Step64x64-1)/Step64x64, g.unitRows)
	if isLastRow {
		end = g.unitRows
	}
	g.reconstructed = max(g.reconstructed, end)

	first := len(g.completed)
	for {
		if g.nextTail < g.nextBody && g.tailReady(g.nextTail) {
			g.runTail(g.nextTail)
			g.nextTail++
			continue
		}
		if g.nextBody < g.reconstructed && g.nextTail == g.nextBody {
			g.runBody(g.nextBody)
			g.nextBody++
			continue
		}
		break
	}
	ran := append([]Task(nil), g.completed[first:]...)
	if len(ran) > 0 {
		metrics.CdefPassLatency.WithLabelValues("row").Observe(time.Since(start).Seconds())
	}
	return ran
}

func (g *RowGraph) tailReady(unitRow int) bool {
	return unitRow+1 < g.reconstructed || unitRow == g.unitRows-1
}

func (g *RowGraph) unitHeight4x4(unitRow int) int {
	return min(Step64x64, g.rows4x4-unitRow*Step64x64)
}

func (g *RowGraph) runBody(unitRow int) {
	if height4x4 := g.unitHeight4x4(unitRow) - lagRows4x4; height4x4 > 0 {
		g.pass.applyRows(unitRow*Step64x64, height4x4)
	}
	g.completed = append(g.completed, Task{Kind: TaskBody, UnitRow: unitRow})
}

func (g *RowGraph) runTail(unitRow int) {
	height4x4 := g.unitHeight4x4(unitRow)
	g.pass.applyRows(unitRow*Step64x64+height4x4-lagRows4x4, lagRows4x4)
	g.completed = append(g.completed, Task{Kind: TaskTail, UnitRow: unitRow})
}

// Done reports whether every task of the frame has run.
func (g *RowGraph) Done() bool {
	return g.nextTail == g.unitRows
}

// Completed returns the tasks run so far in execution order.
func (g *RowGraph) Completed() []Task {
	return append([]Task(nil), g.completed...)
}

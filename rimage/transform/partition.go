package transform

import (
	"fmt"

	"go.viam.com/rgbd/utils"
)

// BufferKind names the snapshot buffer a partition writes into.
type BufferKind int

// The buffers filled by the conversion stage.
const (
	// BufferWorld is the depth copy, the world point buffer and the label reset.
	BufferWorld BufferKind = iota
	BufferRegisteredColor
	BufferColor
	BufferIR
)

func (k BufferKind) String() string {
	switch k {
	case BufferWorld:
		return "world"
	case BufferRegisteredColor:
		return "registered_color"
	case BufferColor:
		return "color"
	case BufferIR:
		return "ir"
	default:
		return fmt.Sprintf("BufferKind(%d)", int(k))
	}
}

// Partition is the half-open row band [StartRow, EndRow) of one buffer.
type Partition struct {
	StartRow int
	EndRow   int
	Kind     BufferKind
}

func (p Partition) String() string {
	return fmt.Sprintf("%s[%d,%d)", p.Kind, p.StartRow, p.EndRow)
}

// PartitionRows splits height rows into min(n, height) bands of floor(height/n) rows with the
// remainder added to the last band.
func PartitionRows(height, n int, kind BufferKind) []Partition {
	ranges := utils.GroupRanges(height, n)
	parts := make([]Partition, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, Partition{StartRow: r.From, EndRow: r.To, Kind: kind})
	}
	return parts
}

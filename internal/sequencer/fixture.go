package sequencer

import (
	"github.com/N-O-S-T/FactoryTestApp/internal/board"
	"github.com/N-O-S-T/FactoryTestApp/internal/dut"
	"github.com/N-O-S-T/FactoryTestApp/internal/programmer"
)

// Station is one measuring board with the debug probe wired to it.
type Station struct {
	// Number is the board's position in the fixture, used in slot labels.
	Number     int
	Board      board.Driver
	Programmer programmer.Driver
}

// Fixture is the hardware the sequencer drives. It is built once at
// startup and shared by reference with every stage.
//
// Stations are visited in the order given here, inside an outer loop over
// slot numbers. The order matters for bank switching and must not change
// between stages.
type Fixture struct {
	Stations      []Station
	SlotsPerBoard int

	// PowerBoardID is the BoardID of the board whose slot 1 output
	// switches supply to every DUT.
	PowerBoardID int

	Host board.Host
}

// PowerStation returns the station carrying the power board.
func (f *Fixture) PowerStation() (Station, bool) {
	for _, st := range f.Stations {
		if st.Board != nil && st.Board.BoardID() == f.PowerBoardID {
			return st, true
		}
	}
	return Station{}, false
}

// Slots returns every slot position in visit order.
func (f *Fixture) Slots() []dut.Slot {
	out := make([]dut.Slot, 0, f.SlotsPerBoard*len(f.Stations))
	for n := 1; n <= f.SlotsPerBoard; n++ {
		for _, st := range f.Stations {
			out = append(out, dut.Slot{Board: st.Number, Number: n})
		}
	}
	return out
}

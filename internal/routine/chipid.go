package routine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/N-O-S-T/FactoryTestApp/internal/board"
)

// deviceIDAddress is where the EFR32 device information page keeps the
// 64-bit unique identifier, low word first.
const deviceIDAddress = "0x0FE081F0"

// ChipIDCommand is the railtest shell command reading both ID words.
const ChipIDCommand = "getmemw " + deviceIDAddress + " 2"

var hexWord = regexp.MustCompile(`0[xX][0-9A-Fa-f]+`)

// ReadChipID reads the unique ID through the DUT's railtest shell.
func ReadChipID(ctx context.Context, b board.Driver, slot int) (string, error) {
	tokens, err := b.SendBusCommand(ctx, slot, ChipIDCommand)
	if err != nil {
		return "", fmt.Errorf("reading chip id: %w", err)
	}
	return ParseChipID(tokens)
}

// ParseChipID extracts the two memory words from a getmemw reply and joins
// them high word first without the 0x prefixes:
//
//	0x0000ABCD 0x1234EF00 -> 1234EF000000ABCD
//
// The echoed address is ignored.
func ParseChipID(tokens []string) (string, error) {
	var words []string
	for _, w := range hexWord.FindAllString(strings.Join(tokens, " "), -1) {
		if strings.EqualFold(w, deviceIDAddress) {
			continue
		}
		words = append(words, w)
	}
	if len(words) < 2 {
		return "", fmt.Errorf("%w: %q", ErrBadResponse, strings.Join(tokens, " "))
	}

	lo, hi := words[len(words)-2], words[len(words)-1]
	return strings.ToUpper(hi[2:] + lo[2:]), nil
}

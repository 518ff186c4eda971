package cnwlicensing

import (
	_ "embed"
	"fmt"
	"strings"
)

// wordTableSize is the number of dictionary entries that form the byte
// code page: one word per byte value 0-255.
const wordTableSize = 256

// The word dictionary is an embedded, versioned asset. The first 256
// entries, in file order, ARE the code page for the word encoding:
// reordering or editing a deployed dictionary changes how existing
// word-format keys decode. Additional entries beyond the first 256 are
// ignored.
//
//go:embed words.txt
var wordsFile string

// wordTable maps a byte value to its dictionary word (lowercase).
var wordTable = mustLoadWordTable(wordsFile)

// wordIndex is the reverse lookup from lowercase word to byte value.
var wordIndex = buildWordIndex(wordTable)

// mustLoadWordTable parses the embedded dictionary and panics if it
// cannot yield a valid code page. A short or duplicated dictionary is a
// build defect, so failing at init beats failing on first decode.
func mustLoadWordTable(raw string) [wordTableSize]string {
	var table [wordTableSize]string
	seen := make(map[string]struct{}, wordTableSize)
	n := 0
	for _, line := range strings.Split(raw, "\n") {
		word := strings.ToLower(strings.TrimSpace(line))
		if word == "" {
			continue
		}
		if n >= wordTableSize {
			break
		}
		if _, dup := seen[word]; dup {
			panic(fmt.Sprintf("cnwlicensing: duplicate dictionary word %q at entry %d", word, n))
		}
		seen[word] = struct{}{}
		table[n] = word
		n++
	}
	if n < wordTableSize {
		panic(fmt.Sprintf("cnwlicensing: word dictionary has %d entries, need %d", n, wordTableSize))
	}
	return table
}

func buildWordIndex(table [wordTableSize]string) map[string]byte {
	index := make(map[string]byte, wordTableSize)
	for i, word := range table {
		index[word] = byte(i)
	}
	return index
}

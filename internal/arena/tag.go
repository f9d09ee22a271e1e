package arena

// Minimum block: header and footer with no payload.
const minBlockWords = 2

const allocatedBit = 1

func makeTag(words int, allocated bool) uint64 {
	t := uint64(words) << 1 //nolint:gosec // words is a block length, never negative
	if allocated {
		t |= allocatedBit
	}
	return t
}

func tagWords(t uint64) int {
	return int(t >> 1) //nolint:gosec // bounded by arena length
}

func tagAllocated(t uint64) bool {
	return t&allocatedBit == allocatedBit
}

// setTags writes the same tag into the header at h and the matching footer.
func (a *Arena) setTags(h, words int, allocated bool) {
	t := makeTag(words, allocated)
	a.words[h] = t
	a.words[h+words-1] = t
}

// blockAt returns the length and state of the block whose header is at h.
// A zero or overrunning length means the tags are corrupt.
func (a *Arena) blockAt(h int) (int, bool) {
	t := a.words[h]
	n := tagWords(t)
	if n < minBlockWords || h+n > len(a.words) {
		panic(corruptf("bad header tag %#x at word %d", t, h))
	}
	return n, tagAllocated(t)
}

package steg

// HuffmanTableSet holds the tries declared by the DHT segments of one file.
// Slot i is 2*tableID + isAC. The set owns every trie exactly once; the
// per-channel bindings made from the scan header are plain references.
type HuffmanTableSet struct {
	slots     [MaxTableSlots]*HuffmanTrie
	remaining int

	// bound[channel][isAC] is the trie each scan component decodes with
	bound [ColorChannelCount][2]*HuffmanTrie
}

// NewHuffmanTableSet creates an empty table set
func NewHuffmanTableSet() *HuffmanTableSet {
	return &HuffmanTableSet{remaining: maxDeclaredTables}
}

// SlotIndex maps a table id and class (0 = DC, 1 = AC) to its slot
func SlotIndex(tableID, isAC uint8) int {
	return 2*int(tableID) + int(isAC)
}

// Slot returns the trie stored at slot i, or nil
func (s *HuffmanTableSet) Slot(i int) *HuffmanTrie {
	if i < 0 || i >= MaxTableSlots {
		return nil
	}
	return s.slots[i]
}

// Remaining returns how many more tables may be declared
func (s *HuffmanTableSet) Remaining() int {
	return s.remaining
}

// ParseDHT reads every table definition of one DHT segment. data is the
// segment body following the two length bytes. On error the set must be
// discarded by the caller.
func (s *HuffmanTableSet) ParseDHT(data []byte) error {
	pos := 0
	for pos < len(data) {
		if s.remaining == 0 {
			return NewStegError(ExitCodeFormatError, "too many huffman tables declared")
		}

		isAC := data[pos] >> 4
		tableID := data[pos] & 0x0F
		pos++

		if isAC > 1 {
			return errorf(ExitCodeFormatError, "invalid huffman table class %d", isAC)
		}
		index := SlotIndex(tableID, isAC)
		if index >= MaxTableSlots {
			return errorf(ExitCodeFormatError,
				"invalid huffman table id values: %d %d", tableID, isAC)
		}
		if s.slots[index] != nil {
			return errorf(ExitCodeFormatError, "huffman table slot %d declared twice", index)
		}

		if pos+maxCodeLength > len(data) {
			return NewStegError(ExitCodeFormatError, "DHT segment too short")
		}
		var counts [maxCodeLength]uint8
		copy(counts[:], data[pos:pos+maxCodeLength])
		pos += maxCodeLength

		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if pos+total > len(data) {
			return NewStegError(ExitCodeFormatError, "DHT segment too short for symbols")
		}

		trie, err := BuildHuffmanTrie(counts, data[pos:pos+total])
		if err != nil {
			return err
		}
		pos += total

		s.slots[index] = trie
		s.remaining--
		log.Debugf("huffman table id=%d isAC=%d slot=%d codes=%d", tableID, isAC, index, total)
	}
	return nil
}

// Bind points a scan channel at its DC and AC tables
func (s *HuffmanTableSet) Bind(channel int, dcID, acID uint8) error {
	if channel < 0 || channel >= ColorChannelCount {
		return errorf(ExitCodeFormatError, "invalid color channel %d", channel)
	}
	dc := s.Slot(SlotIndex(dcID, 0))
	ac := s.Slot(SlotIndex(acID, 1))
	if dc == nil || ac == nil {
		return errorf(ExitCodeFormatError,
			"scan references undefined huffman tables dc=%d ac=%d", dcID, acID)
	}
	s.bound[channel][0] = dc
	s.bound[channel][1] = ac
	return nil
}

// Table returns the trie a channel decodes its DC or AC coefficients with
func (s *HuffmanTableSet) Table(channel int, isAC bool) *HuffmanTrie {
	if isAC {
		return s.bound[channel][1]
	}
	return s.bound[channel][0]
}

func (s *HuffmanTableSet) isBound() bool {
	for ch := 0; ch < ColorChannelCount; ch++ {
		if s.bound[ch][0] == nil || s.bound[ch][1] == nil {
			return false
		}
	}
	return true
}

package safestream

// forwardGapThreshold separates a genuinely newer packet from a stale
// straggler that arrives after the 16-bit id space has wrapped around it.
const forwardGapThreshold = 0xc000

// idWrap is the sentinel id at which both peers must pause and
// resynchronize before the sequence counter wraps back to zero.
const idWrap = 0xffff

// seqIsDuplicateOrOld reports whether id is the current expected id or
// numerically older. Every such packet is ACKed: the expected one because
// it is being delivered, an older one because the sender evidently missed
// our earlier ACK for it.
func seqIsDuplicateOrOld(id, expected uint16) bool {
	return id <= expected
}

// seqIsNext reports whether id is exactly the next packet we're waiting for.
func seqIsNext(id, expected uint16) bool {
	return id == expected
}

// seqIsForwardGap reports whether id is ahead of expected by less than
// forwardGapThreshold, i.e. it is a genuine gap (loss) rather than a
// pre-wrap straggler arriving after we've already wrapped past it.
func seqIsForwardGap(id, expected uint16) bool {
	return id > expected && (id-expected) < forwardGapThreshold
}

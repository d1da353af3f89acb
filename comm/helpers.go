package comm

// bcastChunk bounds the element count of a single broadcast so that a
// substrate with 32-bit counts cannot overflow on huge payloads.
const bcastChunk = 100000000

// Broadcast replicates root's vec into every member's vec, splitting
// the transfer into chunks of at most 1e8 elements.
func Broadcast(g Group, vec []float64, root int) error {
	if g.Size() <= 1 {
		return nil
	}
	for off := 0; off < len(vec); off += bcastChunk {
		end := off + bcastChunk
		if end > len(vec) {
			end = len(vec)
		}
		if err := g.Bcast(vec[off:end], root); err != nil {
			return err
		}
	}
	return nil
}

// Allreduce combines every member's vec with op and leaves the result
// in every member's vec: a reduction to rank 0 followed by a
// broadcast.
func Allreduce(g Group, vec []float64, op Op) error {
	if g.Size() <= 1 {
		return nil
	}
	if err := g.Reduce(vec, op, 0); err != nil {
		return err
	}
	return Broadcast(g, vec, 0)
}

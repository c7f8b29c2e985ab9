package port

// CostLedger tracks transcription cost waiting to be billed to a collection.
type CostLedger interface {
	// Accumulate adds amount to the pending cost of collectionID.
	Accumulate(collectionID string, amount float64) error

	// Pop returns the pending cost of collectionID and resets it to zero.
	Pop(collectionID string) (float64, error)
}

package storage

// NotFoundError is returned when an event doesn't exist in the store.
type NotFoundError struct {
	ID   string
	Hash string
}

func (e NotFoundError) Error() string {
	switch {
	case e.ID != "":
		return "event not found: " + e.ID
	case e.Hash != "":
		return "event not found for hash: " + e.Hash
	}

	return "event not found"
}

package entry

// InvalidEntryError indicates a malformed entry construction: a kind and its
// required fields did not match. It is always a local caller error and never
// reaches storage.
type InvalidEntryError struct {
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return "invalid log entry: " + e.Reason
}

package storage

// Interface defines the contract for artifact storage operations. Keys are
// slash-separated paths relative to the workplace root.
type Interface interface {
	Store(name string, data []byte) error
	Retrieve(name string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(name string) error
}

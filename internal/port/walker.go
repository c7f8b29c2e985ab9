package port

// FileInfo describes one file found under an ingest root.
type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// FileReader reads a document as text.
type FileReader interface {
	ReadFile(path string) (string, error)
}

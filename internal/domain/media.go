package domain

// MediaFile is an uploaded attachment from the export.
type MediaFile interface {
	Name() string
	Size() int64
	ContentType() string
	Bytes() ([]byte, error)
}

// MediaSet maps filenames to uploaded files. Names are case-sensitive and
// unique; the set remembers upload order. It is read-only once built.
type MediaSet struct {
	files map[string]MediaFile
	order []string
}

// NewMediaSet builds a set in the given order. A later file with an already
// seen name replaces the earlier one but keeps its position.
func NewMediaSet(files ...MediaFile) *MediaSet {
	s := &MediaSet{files: make(map[string]MediaFile, len(files))}
	for _, f := range files {
		name := f.Name()
		if _, dup := s.files[name]; !dup {
			s.order = append(s.order, name)
		}
		s.files[name] = f
	}
	return s
}

func (s *MediaSet) Get(name string) (MediaFile, bool) {
	if s == nil {
		return nil, false
	}
	f, ok := s.files[name]
	return f, ok
}

func (s *MediaSet) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

func (s *MediaSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns the filenames in upload order.
func (s *MediaSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MemoryFile is an in-memory MediaFile.
type MemoryFile struct {
	FileName string
	Type     string
	Data     []byte
}

func (f *MemoryFile) Name() string           { return f.FileName }
func (f *MemoryFile) Size() int64            { return int64(len(f.Data)) }
func (f *MemoryFile) ContentType() string    { return f.Type }
func (f *MemoryFile) Bytes() ([]byte, error) { return f.Data, nil }

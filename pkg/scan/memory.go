package scan

import (
	"context"

	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// MemorySource serves a frame that is already loaded.
type MemorySource struct {
	DF *frame.DataFrame
}

func (s *MemorySource) Read(_ context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	return Finish(s.DF, opts)
}

func (*MemorySource) Kind() provenance.SourceKind {
	return provenance.SourceInMemory
}

func (*MemorySource) Location() []string {
	return nil
}

var _ Source = &MemorySource{}

package scan

import (
	"context"
	"os"

	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// IPCSource reads an arrow IPC file; every record batch becomes a chunk.
type IPCSource struct {
	Path string
}

func (s *IPCSource) Kind() provenance.SourceKind {
	return provenance.SourceFile
}

func (s *IPCSource) Location() []string {
	return []string{s.Path}
}

func (s *IPCSource) Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to open %s: %s", s.Path, err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to read %s: %s", s.Path, err)
	}
	defer r.Close()

	parts := make([]*frame.DataFrame, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, execerror.Interrupted()
		}
		rec, err := r.Record(i)
		if err != nil {
			return nil, nil, err
		}
		df, err := frame.FromArrowRecord(rec)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, df)
	}
	df, err := frame.ConcatFrames(parts)
	if err != nil {
		return nil, nil, err
	}
	return Finish(df, opts)
}

var _ Source = &IPCSource{}

package execerror_test

import (
	"testing"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorRendering(t *testing.T) {
	assert := assert.New(t)

	err := execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "could not find %q in schema", "a")
	assert.Equal(`ColumnNotFound: could not find "a" in schema`, err.Error())

	assert.Equal("ComputeError: query interrupted", execerror.Interrupted().Error())
}

func TestBreadcrumbs(t *testing.T) {
	assert := assert.New(t)

	base := execerror.New(execerror.EXEC_COMPUTE, "boom")
	err := execerror.FailedInput(execerror.FailedHere(base, "filter"), "select")

	assert.Equal("'select' input failed to resolve: 'filter' failed: ComputeError: boom", err.Error())
	assert.Equal(execerror.EXEC_COMPUTE, execerror.CodeOf(err))
	assert.True(execerror.Is(err, execerror.EXEC_COMPUTE))
	assert.Equal(base, errors.Cause(err))

	assert.Nil(execerror.FailedHere(nil, "filter"))
	assert.Equal(execerror.EXEC_UNEXPECTED, execerror.CodeOf(errors.New("plain")))
}

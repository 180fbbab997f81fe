package execerror

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	EXEC_UNEXPECTED        = "EXECU"
	EXEC_COMPUTE           = "EXECC"
	EXEC_INVALID_OPERATION = "EXECI"
	EXEC_COLUMN_NOT_FOUND  = "EXECN"
	EXEC_SCHEMA_MISMATCH   = "EXECS"
	EXEC_INTERRUPTED       = "EXECX"
	EXEC_VALIDATOR         = "EXECV"
)

var existingErrorCodeMap = map[string]string{
	EXEC_COMPUTE:           "ComputeError",
	EXEC_INVALID_OPERATION: "InvalidOperation",
	EXEC_COLUMN_NOT_FOUND:  "ColumnNotFound",
	EXEC_SCHEMA_MISMATCH:   "SchemaMismatch",
	EXEC_INTERRUPTED:       "ComputeError",
	EXEC_VALIDATOR:         "ValidatorError",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &ExecError{}

type ExecError struct {
	Err error

	ErrorCode string
}

// New creates an error carrying the given code.
func New(errorCode string, errorMsg string) *ExecError {
	return &ExecError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

func Newf(errorCode string, format string, a ...any) *ExecError {
	return &ExecError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// Interrupted is returned by every operator that observes the cancel flag.
func Interrupted() *ExecError {
	return New(EXEC_INTERRUPTED, "query interrupted")
}

func (er *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *ExecError) Unwrap() error {
	return er.Err
}

// CodeOf returns the code of the innermost ExecError in the chain,
// or EXEC_UNEXPECTED when there is none.
func CodeOf(err error) string {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.ErrorCode
	}
	return EXEC_UNEXPECTED
}

func Is(err error, errorCode string) bool {
	return err != nil && CodeOf(err) == errorCode
}

// FailedHere adds a "'stage' failed" breadcrumb.
func FailedHere(err error, stage string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "'%s' failed", stage)
}

// FailedInput adds a "'stage' input failed to resolve" breadcrumb.
func FailedInput(err error, stage string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "'%s' input failed to resolve", stage)
}
